package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPipeTableWithHeader(t *testing.T) {
	text := "Specifications\n" +
		"Parameter | Value | Unit\n" +
		"Torque | 25 | (Nm)\n" +
		"Speed | 1450 | (rpm)\n"

	tables := NewTableExtractor().Extract(text, 12, "pump-900")
	require.Len(t, tables, 1)
	tbl := tables[0]
	assert.Equal(t, "tbl_pump-900_12_000", tbl.TableID)
	require.Len(t, tbl.Rows, 2)

	row := tbl.Rows[0]
	assert.Equal(t, []string{"Parameter", "Value", "Unit"}, row.Headers)
	assert.Equal(t, []string{"Torque", "25", "(Nm)"}, row.RowCells)
	assert.Equal(t, "Nm", row.Units[2])
	assert.Equal(t, 0, row.RowIndex)
	assert.Equal(t, 12, row.PageNumber)
}

func TestExtractKeyValueTable(t *testing.T) {
	text := "Max torque: 25 Nm\nRated speed: 1450 rpm\nSupply voltage: 400 V\n"

	tables := NewTableExtractor().Extract(text, 3, "")
	require.Len(t, tables, 1)
	tbl := tables[0]
	assert.Equal(t, "table-p0003-000", tbl.TableID)
	require.Len(t, tbl.Rows, 3)
	// KV tables must not promote the first row to headers.
	assert.Empty(t, tbl.Rows[0].Headers)
	assert.Equal(t, []string{"Max torque", "25 Nm"}, tbl.Rows[0].RowCells)
}

func TestColonSplitGuardsURLs(t *testing.T) {
	cells := splitRow("see https://example.com/manual for details")
	assert.Equal(t, []string{"see https://example.com/manual for details"}, cells)
}

func TestTwoColumnSpaceTableIsNotKV(t *testing.T) {
	text := "Bearing  6204-2Z  10 mm\nSeal  NBR-70  22 mm\nShaft  C45  17 mm\n"
	tables := NewTableExtractor().Extract(text, 1, "gear-100")
	require.Len(t, tables, 1)
	for _, row := range tables[0].Rows {
		assert.GreaterOrEqual(t, len(row.RowCells), 2)
	}
}

func TestGroupsOfOneLineAreIgnored(t *testing.T) {
	text := "Torque 25 Nm is applied here\nThen regular prose follows without numbers.\n"
	tables := NewTableExtractor().Extract(text, 1, "d")
	assert.Empty(t, tables)
}

func TestRawTextReconstruction(t *testing.T) {
	text := "Parameter | Value\nTorque | 25\nSpeed | 1450\n"
	tables := NewTableExtractor().Extract(text, 2, "d1")
	require.Len(t, tables, 1)
	assert.Contains(t, tables[0].RawText, "Parameter | Value || Torque | 25")
}

func TestLooksTabular(t *testing.T) {
	assert.True(t, looksTabular("a | b"))
	assert.True(t, looksTabular("Max torque: 25 Nm"))
	assert.True(t, looksTabular("one  two  three  four"))
	assert.True(t, looksTabular("gap 0.5 to 0.8 mm"))
	assert.False(t, looksTabular("plain prose sentence"))
	assert.False(t, looksTabular(""))
}
