package models

type BreadcrumbItem struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// CategoryInfo holds up to three category levels taken from a breadcrumb.
type CategoryInfo struct {
	ParentCategory    string           `json:"parent_category"`
	ParentCategoryURL string           `json:"parent_category_url"`
	Category          string           `json:"category"`
	CategoryURL       string           `json:"category_url"`
	Category2         string           `json:"category2"`
	Category2URL      string           `json:"category2_url"`
	Breadcrumb        []BreadcrumbItem `json:"breadcrumb"`
}

// FromBreadcrumb maps positions 1, 2 and 3 to parent, category and
// category2. Without a position 2 the parent doubles as the category.
func FromBreadcrumb(items []BreadcrumbItem) CategoryInfo {
	info := CategoryInfo{Breadcrumb: items}

	parent, hasParent := findPosition(items, 1)
	if hasParent {
		info.ParentCategory = parent.Name
		info.ParentCategoryURL = parent.URL
	}

	if sub, ok := findPosition(items, 2); ok {
		info.Category = sub.Name
		info.CategoryURL = sub.URL
	} else if hasParent {
		info.Category = parent.Name
		info.CategoryURL = parent.URL
	}

	if sub2, ok := findPosition(items, 3); ok {
		info.Category2 = sub2.Name
		info.Category2URL = sub2.URL
	}

	return info
}

func findPosition(items []BreadcrumbItem, position int) (BreadcrumbItem, bool) {
	for _, item := range items {
		if item.Position == position {
			return item, true
		}
	}
	return BreadcrumbItem{}, false
}
