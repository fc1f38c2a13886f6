package server

import (
	"sort"
	"strconv"
	"strings"
)

const privateRoomPrefix = "private_"

// PrivateRoomName returns the room shared by the given users. The name does
// not depend on argument order or repetition.
func PrivateRoomName(userIDs ...int64) string {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return privateRoomPrefix + strings.Join(parts, "_")
}

// ParsePrivateRoom returns the participants of a private room name. Only
// canonical names, as built by PrivateRoomName for two or more users, are
// accepted.
func ParsePrivateRoom(room string) ([]int64, bool) {
	rest, ok := strings.CutPrefix(room, privateRoomPrefix)
	if !ok || rest == "" {
		return nil, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) < 2 {
		return nil, false
	}
	ids := make([]int64, 0, len(parts))
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 || strconv.FormatInt(id, 10) != p {
			return nil, false
		}
		if i > 0 && id <= ids[i-1] {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
