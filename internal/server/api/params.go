package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// queryList reads an array parameter given as repeated keys, comma-separated
// values or both. Blank items are dropped; an absent parameter is nil.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// queryString reads a scalar parameter. Blank is absent.
func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// queryInt reads a non-negative integer parameter. present is false when the
// parameter is absent or blank.
func queryInt(r *http.Request, key string) (n int, present bool, err error) {
	v := queryString(r, key)
	if v == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, true, nil
}

// page reads offset and size. defaultSize applies when size is absent.
func page(r *http.Request, defaultSize int) (offset, size int, sizeGiven bool, err error) {
	offset, _, err = queryInt(r, "offset")
	if err != nil {
		return 0, 0, false, err
	}
	size, sizeGiven, err = queryInt(r, "size")
	if err != nil {
		return 0, 0, false, err
	}
	if !sizeGiven {
		size = defaultSize
	}
	return offset, size, sizeGiven, nil
}
