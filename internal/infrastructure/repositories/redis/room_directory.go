package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix = "callhub:room:"
	roomIndexKey  = "callhub:rooms"
)

// joinScript creates the room on first use and adds the member record.
// It returns {created, already_joined, members_before}.
var joinScript = redis.NewScript(`
local created = 0
if redis.call("EXISTS", KEYS[1]) == 0 then
	redis.call("HSET", KEYS[1], "call_type", ARGV[3], "max_participants", ARGV[4], "created_at", ARGV[5])
	redis.call("SADD", KEYS[3], ARGV[6])
	created = 1
end
local before = redis.call("HVALS", KEYS[2])
local already = redis.call("HEXISTS", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
return {created, already, before}
`)

// leaveScript removes the member and drops the room with its last member.
// It returns {removed, destroyed, remaining}.
var leaveScript = redis.NewScript(`
local removed = redis.call("HDEL", KEYS[2], ARGV[1])
local remaining = redis.call("HVALS", KEYS[2])
local destroyed = 0
if removed == 1 and #remaining == 0 then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[3], ARGV[2])
	destroyed = 1
end
return {removed, destroyed, remaining}
`)

var destroyScript = redis.NewScript(`
local members = redis.call("HVALS", KEYS[2])
redis.call("DEL", KEYS[1], KEYS[2])
redis.call("SREM", KEYS[3], ARGV[1])
return members
`)

var setMemberScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// RedisRoomDirectory keeps room membership in Redis so that every signaling
// instance sees the same rooms. Each mutation is one Lua script, which keeps
// join and leave linearizable across instances.
//
// TODO: reap member records left behind by an instance that exits without
// draining its sockets.
type RedisRoomDirectory struct {
	client *redis.Client
}

func NewRedisRoomDirectory(client *redis.Client) ports.RoomDirectory {
	return &RedisRoomDirectory{client: client}
}

func roomKey(id domain.RoomID) string {
	return roomKeyPrefix + string(id)
}

func membersKey(id domain.RoomID) string {
	return roomKeyPrefix + string(id) + ":members"
}

func (d *RedisRoomDirectory) keys(roomID domain.RoomID) []string {
	return []string{roomKey(roomID), membersKey(roomID), roomIndexKey}
}

func (d *RedisRoomDirectory) Join(ctx context.Context, roomID domain.RoomID, member domain.ParticipantInfo, opts domain.RoomOptions) (ports.JoinResult, error) {
	data, err := json.Marshal(member)
	if err != nil {
		return ports.JoinResult{}, fmt.Errorf("failed to marshal member: %w", err)
	}
	callType := opts.CallType
	if !callType.Valid() {
		callType = domain.CallTypeVideo
	}

	res, err := joinScript.Run(ctx, d.client, d.keys(roomID),
		string(member.ConnectionID),
		data,
		string(callType),
		opts.MaxParticipants,
		time.Now().UnixNano(),
		string(roomID),
	).Slice()
	if err != nil {
		return ports.JoinResult{}, fmt.Errorf("failed to join room in Redis: %w", err)
	}
	if len(res) != 3 {
		return ports.JoinResult{}, fmt.Errorf("unexpected join reply: %v", res)
	}

	before, err := decodeMembers(res[2])
	if err != nil {
		return ports.JoinResult{}, err
	}
	existing := before[:0]
	for _, m := range before {
		if m.ConnectionID != member.ConnectionID {
			existing = append(existing, m)
		}
	}

	return ports.JoinResult{
		IsNewRoom:            asInt(res[0]) == 1,
		AlreadyJoined:        asInt(res[1]) == 1,
		ExistingParticipants: existing,
	}, nil
}

func (d *RedisRoomDirectory) Leave(ctx context.Context, roomID domain.RoomID, id domain.ConnectionID) (ports.LeaveResult, error) {
	res, err := leaveScript.Run(ctx, d.client, d.keys(roomID), string(id), string(roomID)).Slice()
	if err != nil {
		return ports.LeaveResult{}, fmt.Errorf("failed to leave room in Redis: %w", err)
	}
	if len(res) != 3 {
		return ports.LeaveResult{}, fmt.Errorf("unexpected leave reply: %v", res)
	}

	result := ports.LeaveResult{
		Removed:       asInt(res[0]) == 1,
		RoomDestroyed: asInt(res[1]) == 1,
	}
	if !result.RoomDestroyed {
		if result.RemainingParticipants, err = decodeMembers(res[2]); err != nil {
			return ports.LeaveResult{}, err
		}
	}
	return result, nil
}

func (d *RedisRoomDirectory) SetMedia(ctx context.Context, roomID domain.RoomID, id domain.ConnectionID, media domain.MediaState) error {
	raw, err := d.client.HGet(ctx, membersKey(roomID), string(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get member from Redis: %w", err)
	}

	var member domain.ParticipantInfo
	if err := json.Unmarshal([]byte(raw), &member); err != nil {
		return fmt.Errorf("failed to unmarshal member: %w", err)
	}
	member.Media = media
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	if err := setMemberScript.Run(ctx, d.client, []string{membersKey(roomID)}, string(id), data).Err(); err != nil {
		return fmt.Errorf("failed to update member in Redis: %w", err)
	}
	return nil
}

func (d *RedisRoomDirectory) Members(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error) {
	vals, err := d.client.HVals(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members from Redis: %w", err)
	}
	return unmarshalMembers(vals)
}

func (d *RedisRoomDirectory) Get(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	pipe := d.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, roomKey(roomID))
	membersCmd := pipe.HVals(ctx, membersKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Room{}, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	members, err := unmarshalMembers(membersCmd.Val())
	if err != nil {
		return domain.Room{}, err
	}

	room := domain.Room{
		ID:           roomID,
		CallType:     domain.CallType(meta["call_type"]),
		Participants: make(map[domain.ConnectionID]domain.ParticipantInfo, len(members)),
	}
	room.MaxParticipants, _ = strconv.Atoi(meta["max_participants"])
	if nanos, err := strconv.ParseInt(meta["created_at"], 10, 64); err == nil {
		room.CreatedAt = time.Unix(0, nanos)
	}
	for _, m := range members {
		room.Participants[m.ConnectionID] = m
	}
	return room, nil
}

func (d *RedisRoomDirectory) Destroy(ctx context.Context, roomID domain.RoomID) ([]domain.ParticipantInfo, error) {
	res, err := destroyScript.Run(ctx, d.client, d.keys(roomID), string(roomID)).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to destroy room in Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return decodeMembers(res)
}

func (d *RedisRoomDirectory) Count(ctx context.Context) (int, error) {
	n, err := d.client.SCard(ctx, roomIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms in Redis: %w", err)
	}
	return int(n), nil
}

// decodeMembers reads a Lua array of member JSON strings.
func decodeMembers(v interface{}) ([]domain.ParticipantInfo, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected member list reply: %T", v)
	}
	vals := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member reply: %T", item)
		}
		vals = append(vals, s)
	}
	return unmarshalMembers(vals)
}

func unmarshalMembers(vals []string) ([]domain.ParticipantInfo, error) {
	members := make([]domain.ParticipantInfo, 0, len(vals))
	for _, raw := range vals {
		var m domain.ParticipantInfo
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal member: %w", err)
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ConnectionID < members[j].ConnectionID })
	return members, nil
}

func asInt(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}
