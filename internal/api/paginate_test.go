package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	for _, ca := range []struct {
		name         string
		count        int
		itemsPerPage string
		page         string
		pageCount    int
		items        []int
	}{
		{"single item pages", 5, "1", "1", 5, []int{1}},
		{"out of range", 5, "3", "2", 2, []int{}},
		{"last page", 6, "4", "1", 2, []int{4, 5}},
		{"defaults", 3, "", "", 1, []int{0, 1, 2}},
		{"empty", 0, "1", "0", 0, []int{}},
	} {
		t.Run(ca.name, func(t *testing.T) {
			items := make([]int, ca.count)
			for i := range ca.count {
				items[i] = i
			}

			res, pageCount, err := paginate(items, ca.itemsPerPage, ca.page)
			require.NoError(t, err)
			require.Equal(t, ca.pageCount, pageCount)
			require.Equal(t, ca.items, res)
		})
	}
}

func TestPaginateErrors(t *testing.T) {
	_, _, err := paginate([]int{1}, "0", "")
	require.EqualError(t, err, "invalid 'itemsPerPage'")

	_, _, err = paginate([]int{1}, "", "a")
	require.Error(t, err)
}

func FuzzPaginate(f *testing.F) {
	f.Fuzz(func(_ *testing.T, str1 string, str2 string) {
		items := make([]int, 6)
		for i := range 6 {
			items[i] = i
		}

		paginate(items, str1, str2) //nolint:errcheck
	})
}
