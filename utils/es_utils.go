package utils

import (
	"strings"
)

type kvStr2Inf = map[string]interface{}

var nonKeywordFields = map[string]bool{
	"created":  true,
	"started":  true,
	"finished": true,
}

// MakeSortQuery turns "a,-b" into an ES sort clause; "-" means descending.
func MakeSortQuery(sortRaw string) []kvStr2Inf {
	if sortRaw == "" {
		return nil
	}

	sorts := strings.Split(sortRaw, ",")
	sortQuery := make([]kvStr2Inf, 0)
	for _, sort := range sorts {
		var order string
		var criteria string
		if strings.HasPrefix(sort, "-") {
			order = "desc"
			criteria = strings.TrimPrefix(sort, "-")
		} else {
			order = "asc"
			criteria = sort
		}

		if _, found := nonKeywordFields[criteria]; !found {
			criteria += ".keyword"
		}

		sortQuery = append(sortQuery, kvStr2Inf{
			criteria: kvStr2Inf{
				"order": order,
			},
		})
	}

	return sortQuery
}

// ConvertFiltersToESQueryBody builds a bool query with one term filter per
// non-empty value. Text fields are matched on their keyword sub-field.
func ConvertFiltersToESQueryBody(filters map[string]string, size int, sort string) *kvStr2Inf {
	body := kvStr2Inf{}
	if size != -1 {
		body["size"] = size
	}

	filter := make([]kvStr2Inf, 0)
	for field, value := range filters {
		if value == "" {
			continue
		}
		if _, isKeywordField := nonKeywordFields[field]; !isKeywordField {
			field += ".keyword"
		}
		filter = append(filter, kvStr2Inf{
			"term": kvStr2Inf{
				field: value,
			},
		})
	}

	body["query"] = kvStr2Inf{
		"bool": kvStr2Inf{
			"filter": filter,
		},
	}

	if sortParam := MakeSortQuery(sort); sortParam != nil {
		body["sort"] = sortParam
	}
	return &body
}
