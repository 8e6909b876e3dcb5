package scan

// walkPages drives the cursor pagination shared by every scan kind.
//
// fetch receives the id of the last row of the previous page (zero on the
// first call) and returns the next page: at most pageSize rows in ascending
// id order. The id > cursor predicate excludes the cursor row itself, so
// rows are never revisited even when their underlying state changes
// mid-walk. The walk ends on an empty or short page. The cursor lives only
// in this loop; nothing is persisted between runs.
//
// A fetch error aborts the walk, as does an error from process. Per-row
// failures are process's business and must not surface here.
func walkPages[T any](fetch func(cursor int64) ([]T, error), lastID func(T) int64, process func(page []T) error) (pages int, err error) {
	var cursor int64
	for {
		page, err := fetch(cursor)
		if err != nil {
			return pages, err
		}
		if len(page) == 0 {
			return pages, nil
		}
		pages++
		if err := process(page); err != nil {
			return pages, err
		}
		cursor = lastID(page[len(page)-1])
		if len(page) < pageSize {
			return pages, nil
		}
	}
}
