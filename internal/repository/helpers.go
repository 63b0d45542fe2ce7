package repository

import "strings"

// sortColumn resolves a requested sort field against the allow-list,
// falling back to the default column.
func sortColumn(requested string, allowed map[string]string, fallback string) string {
	if requested == "" {
		return fallback
	}
	if column, ok := allowed[requested]; ok {
		return column
	}
	return fallback
}

// sortOrder normalises the requested order to ASC or DESC.
func sortOrder(requested string) string {
	order := strings.ToUpper(requested)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return order
}

// pageWindow clamps pagination inputs and returns the LIMIT/OFFSET pair.
func pageWindow(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}
