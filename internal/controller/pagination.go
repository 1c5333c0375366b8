package controller

// Paginate clamps page to >= 1 and limit to [1, maxLimit], using def when limit is unset
func Paginate(page, limit, def, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	return page, min(limit, maxLimit)
}
