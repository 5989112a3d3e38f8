package models

import "strconv"

// Tag is a named data channel on an IXON device.
type Tag struct {
	TagID int64  `json:"tagId"`
	Name  string `json:"name"`
}

// Key is the tag id as used in export request bodies.
func (t Tag) Key() string {
	return strconv.FormatInt(t.TagID, 10)
}

// TagsResponse is the envelope of the AgentDeviceDataTagList endpoint.
type TagsResponse struct {
	Data []Tag `json:"data"`
}
