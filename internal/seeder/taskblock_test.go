package seeder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockBasic(t *testing.T) {
	p, ok := ParseBlock("TITLE: Fix login bug\nDESCRIPTION: Users can't log in with SSO.")
	require.True(t, ok)
	assert.Equal(t, "Fix login bug", p.Title)
	assert.Equal(t, "Users can't log in with SSO.", p.Description)
}

func TestParseBlockMissingTitleReturnsNone(t *testing.T) {
	_, ok := ParseBlock("DESCRIPTION: orphaned description, no title")
	assert.False(t, ok)
}

func TestParseBlockMissingDescriptionFallsBackToTitle(t *testing.T) {
	p, ok := ParseBlock("TITLE: Add dark mode")
	require.True(t, ok)
	assert.Equal(t, "Add dark mode", p.Title)
	assert.Equal(t, "Add dark mode", p.Description)
}

func TestParseBlockDescriptionBeforeTitle(t *testing.T) {
	p, ok := ParseBlock("DESCRIPTION: do the thing\nTITLE: The task")
	require.True(t, ok)
	assert.Equal(t, "The task", p.Title)
	assert.Equal(t, "do the thing", p.Description)
}

func TestParseBlockTolerartesCRLFAndLeadingWhitespace(t *testing.T) {
	p, ok := ParseBlock("TITLE: CRLF task\r\n   DESCRIPTION: indented body\r\n")
	require.True(t, ok)
	assert.Equal(t, "CRLF task", p.Title)
	assert.Equal(t, "indented body", p.Description)
}

func TestParseBlockDescriptionSubstringInsideTitleIsNotMistakenForRealLine(t *testing.T) {
	p, ok := ParseBlock("TITLE: Fix DESCRIPTION: handling\nDESCRIPTION: actual body")
	require.True(t, ok)
	assert.Equal(t, "Fix DESCRIPTION: handling", p.Title)
	assert.Equal(t, "actual body", p.Description)
}

func TestParseBlockEmptyDescriptionIsPreservedNotTreatedAsAbsent(t *testing.T) {
	p, ok := ParseBlock("TITLE: Has empty description\nDESCRIPTION:")
	require.True(t, ok)
	assert.Equal(t, "Has empty description", p.Title)
	assert.Equal(t, "", p.Description)
}

func TestParseBlocksExtractsMultipleBlocksFromOneStream(t *testing.T) {
	text := "noise before\n" +
		"TASK_START\nTITLE: First\nDESCRIPTION: one\nTASK_END\n" +
		"chatter in between\n" +
		"TASK_START\nTITLE: Second\nTASK_END\n" +
		"trailing noise"

	proposals := ParseBlocks(text)
	require.Len(t, proposals, 2)
	assert.Equal(t, "First", proposals[0].Title)
	assert.Equal(t, "one", proposals[0].Description)
	assert.Equal(t, "Second", proposals[1].Title)
	assert.Equal(t, "Second", proposals[1].Description)
}

func TestParseBlocksSkipsBlockWithNoTitle(t *testing.T) {
	text := "TASK_START\nDESCRIPTION: no title here\nTASK_END\n" +
		"TASK_START\nTITLE: Kept\nTASK_END\n"

	proposals := ParseBlocks(text)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Kept", proposals[0].Title)
}

func TestParseBlocksIgnoresUnterminatedTrailingBlock(t *testing.T) {
	text := "TASK_START\nTITLE: Complete\nTASK_END\n" +
		"TASK_START\nTITLE: Never closed\n"

	proposals := ParseBlocks(text)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Complete", proposals[0].Title)
}
