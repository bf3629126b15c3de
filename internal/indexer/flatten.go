package indexer

import (
	"strconv"
	"strings"
)

// Delimiter joins list values into one metadata string, since index
// metadata holds scalars only. An element that itself contains the
// delimiter does not survive a Flatten/Unflatten round trip.
const Delimiter = "|||"

func Flatten(list []string) string {
	return strings.Join(list, Delimiter)
}

// Unflatten splits s back into its elements. The empty string is the empty
// list.
func Unflatten(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, Delimiter)
}

// DocumentID is the index key of one summary window.
func DocumentID(path string, startID, endID int) string {
	return path + ":" + strconv.Itoa(startID) + ":" + strconv.Itoa(endID)
}
