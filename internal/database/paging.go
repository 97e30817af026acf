package database

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps a 1-based page and a page size. A non-positive pageSize
// falls back to DefaultPageSize; larger sizes are capped at MaxPageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return page, pageSize
}

// Paginate converts a 1-based page and a page size into LIMIT and OFFSET.
func Paginate(page, pageSize int) (limit, offset int) {
	page, pageSize = NormalizePage(page, pageSize)
	return pageSize, (page - 1) * pageSize
}
