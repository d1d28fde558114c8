package checkengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

func TestCalculateOpOffset_ContiguousPrefixAdvances(t *testing.T) {
	done := []common.Offset{5, 6, 7, 9}
	assert.Equal(t, common.Offset(8), calculateOpOffset(done, 5))
}

func TestCalculateOpOffset_GapStopsAdvance(t *testing.T) {
	done := []common.Offset{5, 7, 8}
	assert.Equal(t, common.Offset(6), calculateOpOffset(done, 5))
}

func TestCalculateOpOffset_EmptyReturnsOld(t *testing.T) {
	assert.Equal(t, common.Offset(42), calculateOpOffset(nil, 42))
}

func TestCalculateOpOffset_UnorderedInput(t *testing.T) {
	done := []common.Offset{9, 5, 7, 6}
	assert.Equal(t, common.Offset(8), calculateOpOffset(done, 5))
}

func TestCalculateOpOffset_DuplicatesIgnored(t *testing.T) {
	done := []common.Offset{5, 5, 6}
	assert.Equal(t, common.Offset(7), calculateOpOffset(done, 5))
}
