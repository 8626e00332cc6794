package csvimport

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVParser(t *testing.T) {
	t.Run("UTF-8 BOM is stripped", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("\xEF\xBB\xBFname,zip\nAlice,62701"))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())
		assert.Equal(t, "name", parser.Headers()[0])
	})

	t.Run("Empty file returns error", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader(""))
		assert.Nil(t, parser)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("Invalid encoding returns error", func(t *testing.T) {
		_, err := NewCSVParser(strings.NewReader("name\n\xff\xfe\xfd"))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("Custom delimiter", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("name;city\nAlice;NYC"), WithDelimiter(';'))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())
		assert.Equal(t, []string{"name", "city"}, parser.Headers())
	})
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{" Address Line 1 ", "address_line_1"},
		{"ZIP-Code", "zip_code"},
		{"postal.code", "postal_code"},
		{"already_snake", "already_snake"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}

func TestParseHeader_MissingHeader(t *testing.T) {
	parser, err := NewCSVParser(strings.NewReader(" , \n"))
	require.NoError(t, err)
	assert.ErrorIs(t, parser.ParseHeader(), ErrMissingHeader)
}

func TestReadRow(t *testing.T) {
	parser, err := NewCSVParser(strings.NewReader("Name,City\n  Alice , Boston\nBob\n"))
	require.NoError(t, err)
	require.NoError(t, parser.ParseHeader())

	row, err := parser.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "Alice", row.Get("name"))
	assert.Equal(t, "Boston", row.Get("city"))

	row, err = parser.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, "", row.Get("city"))
	assert.Equal(t, "Bob", row.First("full_name", "name"))

	_, err = parser.ReadRow()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, parser.TotalRows())
}

func TestReadAllRows(t *testing.T) {
	t.Run("skips empty rows", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("name,city\nA,X\n,\nB,Y\n"))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())

		rows, err := parser.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, 4, rows[1].LineNumber)
	})

	t.Run("enforces row limit", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("name\nA\nB\nC\n"), WithMaxRows(2))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())

		_, err = parser.ReadAllRows()
		assert.ErrorIs(t, err, ErrTooManyRows)
	})

	t.Run("quoted fields keep delimiters and newlines", func(t *testing.T) {
		parser, err := NewCSVParser(strings.NewReader("name,note\n\"Lee, Ann\",\"line one\nline two\"\n"))
		require.NoError(t, err)
		require.NoError(t, parser.ParseHeader())

		rows, err := parser.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Lee, Ann", rows[0].Get("name"))
		assert.Equal(t, "line one\nline two", rows[0].Get("note"))
	})
}

func TestReadRecipients(t *testing.T) {
	t.Run("maps aliases and merge fields", func(t *testing.T) {
		csv := "Full Name,Street,Apt,City,ST,Postal Code,Email,Coupon Code\n" +
			"Ann Lee,1 Main St,Unit 2,Springfield,IL,62701,ann@example.com,SAVE10\n" +
			"Bob Ray,9 Elm St,,Madison,WI,53703,,\n"

		records, err := ReadRecipients(strings.NewReader(csv), 0)
		require.NoError(t, err)
		require.Len(t, records, 2)

		ann := records[0]
		assert.Equal(t, 2, ann.Line)
		assert.Equal(t, "Ann Lee", ann.Name)
		assert.Equal(t, "1 Main St", ann.Line1)
		assert.Equal(t, "Unit 2", ann.Line2)
		assert.Equal(t, "IL", ann.State)
		assert.Equal(t, "62701", ann.Zip)
		assert.Equal(t, "ann@example.com", ann.Email)
		assert.Equal(t, map[string]string{"coupon_code": "SAVE10"}, ann.MergeFields)

		assert.Nil(t, records[1].MergeFields)
	})

	t.Run("missing required columns", func(t *testing.T) {
		_, err := ReadRecipients(strings.NewReader("name,city\nAnn,Springfield\n"), 0)
		require.ErrorIs(t, err, ErrMissingHeader)
		assert.Contains(t, err.Error(), "address_line1, state, zip")
	})
}
