package service

// maxPage bounds the page number so the storage offset cannot overflow.
const maxPage = 1_000_000

// normalizePage applies defaults and the upper bounds to 1-based paging input.
func normalizePage(page, size, defSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if size < 1 {
		size = defSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

// totalPages is ceil(total / size).
func totalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
