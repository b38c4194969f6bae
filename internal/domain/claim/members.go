package claim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// EncodeGroupMembers serializes members to the stored JSON shape
func EncodeGroupMembers(members []entity.GroupMember) (string, error) {
	if members == nil {
		members = []entity.GroupMember{}
	}
	data, err := json.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("failed to encode group members: %w", err)
	}
	return string(data), nil
}

// DecodeGroupMembers parses the stored JSON shape strictly
func DecodeGroupMembers(raw string) ([]entity.GroupMember, error) {
	var members []entity.GroupMember
	if err := json.Unmarshal([]byte(raw), &members); err != nil {
		return nil, fmt.Errorf("failed to decode group members: %w", err)
	}
	for i, m := range members {
		if m.ID == "" {
			return nil, fmt.Errorf("group member %d has no id", i)
		}
	}
	return members, nil
}

// DecodeGroupMembersTolerant accepts legacy rows written with single quotes.
// It returns false instead of an error for anything it cannot read.
func DecodeGroupMembersTolerant(raw string) ([]entity.GroupMember, bool) {
	if members, err := DecodeGroupMembers(raw); err == nil {
		return members, true
	}
	members, err := DecodeGroupMembers(strings.ReplaceAll(raw, "'", `"`))
	if err != nil {
		return nil, false
	}
	return members, true
}
