package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/scanner/domain"
)

const (
	activationKeyPrefix = "scanner:activation:"
	itemsKeyPrefix      = "scanner:items:"
	tokenKeyPrefix      = "scanner:token:"
	mobileKeyPrefix     = "scanner:mobile:"
)

// Scripts touch keys derived from stored values, so the store assumes a
// single redis node rather than a cluster. Every expiry is capped at the
// owning login session's session_expires_at. Queued items are stored as
// "<submitted_at ms>:<json>".

const activateScript = `
local now = tonumber(ARGV[3])
local session_expires = tonumber(ARGV[7])
local life = session_expires - now
local ttl = math.min(tonumber(ARGV[4]), life)
local idle = math.min(tonumber(ARGV[5]), life)

local current = redis.call("HMGET", KEYS[1], "active", "activated_at", "token", "mobile", "session_expires_at", "last_stamp")
if current[3] then
  redis.call("DEL", ARGV[6] .. current[3])
end
if current[4] then
  redis.call("DEL", ARGV[8] .. current[4])
end

local activated = now
if current[1] == "1" and current[2] and current[5] and tonumber(current[5]) > now then
  activated = tonumber(current[2])
end

redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "active", "1", "activated_at", activated, "session_expires_at", session_expires, "token", ARGV[2], "token_expires_at", now + ttl)
if current[6] then
  redis.call("HSET", KEYS[1], "last_stamp", current[6])
end
redis.call("PEXPIRE", KEYS[1], idle)
redis.call("SET", KEYS[3], ARGV[1], "PX", ttl)
if redis.call("EXISTS", KEYS[2]) == 1 then
  redis.call("PEXPIRE", KEYS[2], idle)
end

return activated
`

const deactivateScript = `
local current = redis.call("HMGET", KEYS[1], "token", "mobile")
if current[1] then
  redis.call("DEL", ARGV[1] .. current[1])
end
if current[2] then
  redis.call("DEL", ARGV[2] .. current[2])
end
redis.call("DEL", KEYS[1], KEYS[2])
return 1
`

const bindScript = `
local id = redis.call("GET", KEYS[1])
if not id then
  return false
end

local now = tonumber(ARGV[2])
local act = ARGV[6] .. id
local current = redis.call("HMGET", act, "active", "token", "token_expires_at", "session_expires_at", "mobile")
if current[1] ~= "1" or current[2] ~= ARGV[1] or not current[3] or not current[4]
  or tonumber(current[3]) <= now or tonumber(current[4]) <= now then
  redis.call("DEL", KEYS[1])
  return false
end

if current[5] then
  redis.call("DEL", ARGV[7] .. current[5])
end

local life = tonumber(current[4]) - now
local ttl = math.min(tonumber(ARGV[3]), life)
local expires = now + ttl
redis.call("HSET", act, "mobile", ARGV[5], "mobile_expires_at", expires)
redis.call("SET", ARGV[7] .. ARGV[5], id, "PX", ttl)
redis.call("PEXPIRE", act, math.min(tonumber(ARGV[4]), life))

return {id, expires}
`

const checkMobileScript = `
local id = redis.call("GET", KEYS[1])
if not id then
  return false
end

local now = tonumber(ARGV[2])
local current = redis.call("HMGET", ARGV[3] .. id, "active", "mobile", "mobile_expires_at", "session_expires_at")
if current[1] ~= "1" or current[2] ~= ARGV[1] or not current[3] or not current[4]
  or tonumber(current[3]) <= now or tonumber(current[4]) <= now then
  return false
end

return id
`

// Returns {1, id, stamp} on success, {0} for a stale binding and {-1} for a
// full queue.
const enqueueMobileScript = `
local id = redis.call("GET", KEYS[1])
if not id then
  return {0}
end

local now = tonumber(ARGV[2])
local act = ARGV[7] .. id
local current = redis.call("HMGET", act, "active", "mobile", "mobile_expires_at", "session_expires_at", "last_stamp")
if current[1] ~= "1" or current[2] ~= ARGV[1] or not current[3] or not current[4]
  or tonumber(current[3]) <= now or tonumber(current[4]) <= now then
  redis.call("DEL", KEYS[1])
  return {0}
end

local items = ARGV[8] .. id
if redis.call("LLEN", items) >= tonumber(ARGV[6]) then
  return {-1}
end

local stamp = now
if current[5] and tonumber(current[5]) > stamp then
  stamp = tonumber(current[5])
end
redis.call("RPUSH", items, string.format("%d:", stamp) .. ARGV[5])

local life = tonumber(current[4]) - now
local ttl = math.min(tonumber(ARGV[3]), life)
local idle = math.min(tonumber(ARGV[4]), life)
redis.call("HSET", act, "mobile_expires_at", now + ttl, "last_stamp", stamp)
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("PEXPIRE", act, idle)
redis.call("PEXPIRE", items, idle)

return {1, id, stamp}
`

// Returns the stamp on success, 0 when inactive and -1 for a full queue.
const enqueueScript = `
local now = tonumber(ARGV[4])
local current = redis.call("HMGET", KEYS[1], "active", "session_expires_at", "last_stamp")
if current[1] ~= "1" or not current[2] or tonumber(current[2]) <= now then
  return 0
end
if redis.call("LLEN", KEYS[2]) >= tonumber(ARGV[2]) then
  return -1
end

local stamp = now
if current[3] and tonumber(current[3]) > stamp then
  stamp = tonumber(current[3])
end
redis.call("RPUSH", KEYS[2], string.format("%d:", stamp) .. ARGV[1])
redis.call("HSET", KEYS[1], "last_stamp", stamp)

local idle = math.min(tonumber(ARGV[3]), tonumber(current[2]) - now)
redis.call("PEXPIRE", KEYS[1], idle)
redis.call("PEXPIRE", KEYS[2], idle)
return stamp
`

// RedisStore shares activations across processes. Each mutation runs as a
// single Lua script so it is atomic on the keys it touches.
type RedisStore struct {
	client *redis.Client
	opts   Options
	clock  clock.Clock

	activate      *redis.Script
	deactivate    *redis.Script
	bind          *redis.Script
	checkMobile   *redis.Script
	enqueue       *redis.Script
	enqueueMobile *redis.Script
}

func NewRedisStore(client *redis.Client, opts Options, clk clock.Clock) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is not configured")
	}
	return &RedisStore{
		client:        client,
		opts:          opts.withDefaults(),
		clock:         clk,
		activate:      redis.NewScript(activateScript),
		deactivate:    redis.NewScript(deactivateScript),
		bind:          redis.NewScript(bindScript),
		checkMobile:   redis.NewScript(checkMobileScript),
		enqueue:       redis.NewScript(enqueueScript),
		enqueueMobile: redis.NewScript(enqueueMobileScript),
	}, nil
}

func activationKey(id string) string { return activationKeyPrefix + id }
func itemsKey(id string) string      { return itemsKeyPrefix + id }
func tokenKey(token string) string   { return tokenKeyPrefix + token }
func mobileKey(token string) string  { return mobileKeyPrefix + token }

func millis(d time.Duration) int64 { return int64(d / time.Millisecond) }

func (s *RedisStore) Activate(ctx context.Context, desktopID string, sessionExpiresAt time.Time) (domain.Activation, error) {
	if desktopID == "" {
		return domain.Activation{}, domain.ErrInvalidDesktopSession
	}
	now := s.clock.Now()
	if !now.Before(sessionExpiresAt) {
		if err := s.Deactivate(ctx, desktopID); err != nil {
			return domain.Activation{}, err
		}
		return domain.Activation{}, domain.ErrInvalidDesktopSession
	}
	token, err := NewToken()
	if err != nil {
		return domain.Activation{}, err
	}

	activated, err := s.activate.Run(ctx, s.client,
		[]string{activationKey(desktopID), itemsKey(desktopID), tokenKey(token)},
		desktopID,
		token,
		now.UnixMilli(),
		millis(s.opts.TokenTTL),
		millis(s.opts.IdleTimeout),
		tokenKeyPrefix,
		sessionExpiresAt.UnixMilli(),
		mobileKeyPrefix,
	).Int64()
	if err != nil {
		return domain.Activation{}, fmt.Errorf("activate scanner: %w", err)
	}

	return domain.Activation{
		DesktopSessionID: desktopID,
		Active:           true,
		ActivatedAt:      time.UnixMilli(activated).UTC(),
		SessionExpiresAt: sessionExpiresAt,
		Token:            token,
		TokenExpiresAt:   capAt(now.Add(s.opts.TokenTTL), sessionExpiresAt),
	}, nil
}

func (s *RedisStore) Deactivate(ctx context.Context, desktopID string) error {
	err := s.deactivate.Run(ctx, s.client,
		[]string{activationKey(desktopID), itemsKey(desktopID)},
		tokenKeyPrefix,
		mobileKeyPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("deactivate scanner: %w", err)
	}
	return nil
}

func (s *RedisStore) CheckActive(ctx context.Context, desktopID string) (bool, error) {
	values, err := s.client.HMGet(ctx, activationKey(desktopID), "active", "session_expires_at").Result()
	if err != nil {
		return false, err
	}
	active, _ := values[0].(string)
	rawExpiry, _ := values[1].(string)
	if active != "1" || rawExpiry == "" {
		return false, nil
	}
	expires, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return false, fmt.Errorf("decode session expiry: %w", err)
	}
	return s.clock.Now().UnixMilli() < expires, nil
}

func (s *RedisStore) BindMobile(ctx context.Context, token string) (domain.Binding, error) {
	if token == "" {
		return domain.Binding{}, domain.ErrInvalidOrExpiredToken
	}
	mobile, err := NewToken()
	if err != nil {
		return domain.Binding{}, err
	}
	now := s.clock.Now()

	res, err := s.bind.Run(ctx, s.client,
		[]string{tokenKey(token)},
		token,
		now.UnixMilli(),
		millis(s.opts.TokenTTL),
		millis(s.opts.IdleTimeout),
		mobile,
		activationKeyPrefix,
		mobileKeyPrefix,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return domain.Binding{}, domain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return domain.Binding{}, fmt.Errorf("bind mobile: %w", err)
	}
	if len(res) != 2 {
		return domain.Binding{}, errors.New("invalid bind script response")
	}

	id, _ := res[0].(string)
	expires, _ := res[1].(int64)
	return domain.Binding{
		DesktopSessionID:   id,
		MobileSessionToken: mobile,
		ExpiresAt:          time.UnixMilli(expires).UTC(),
	}, nil
}

func (s *RedisStore) CheckMobile(ctx context.Context, mobileToken string) (string, error) {
	if mobileToken == "" {
		return "", domain.ErrInvalidOrExpiredToken
	}
	id, err := s.checkMobile.Run(ctx, s.client,
		[]string{mobileKey(mobileToken)},
		mobileToken,
		s.clock.Now().UnixMilli(),
		activationKeyPrefix,
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return "", fmt.Errorf("check mobile binding: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, desktopID string, item domain.ScannedItem) error {
	now := s.clock.Now()
	payload, err := encodeItem(item, now)
	if err != nil {
		return err
	}
	code, err := s.enqueue.Run(ctx, s.client,
		[]string{activationKey(desktopID), itemsKey(desktopID)},
		payload,
		s.opts.MaxQueue,
		millis(s.opts.IdleTimeout),
		now.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("enqueue scan: %w", err)
	}
	switch {
	case code > 0:
		return nil
	case code == -1:
		return domain.ErrQueueFull
	default:
		return domain.ErrNotActive
	}
}

func (s *RedisStore) EnqueueMobile(ctx context.Context, mobileToken string, item domain.ScannedItem) (domain.ScannedItem, error) {
	if mobileToken == "" {
		return domain.ScannedItem{}, domain.ErrInvalidOrExpiredToken
	}
	now := s.clock.Now()
	if item.ID == "" {
		item.ID = newItemID(now)
	}
	payload, err := encodeItem(item, now)
	if err != nil {
		return domain.ScannedItem{}, err
	}

	res, err := s.enqueueMobile.Run(ctx, s.client,
		[]string{mobileKey(mobileToken)},
		mobileToken,
		now.UnixMilli(),
		millis(s.opts.TokenTTL),
		millis(s.opts.IdleTimeout),
		payload,
		s.opts.MaxQueue,
		activationKeyPrefix,
		itemsKeyPrefix,
	).Slice()
	if err != nil {
		return domain.ScannedItem{}, fmt.Errorf("enqueue scan: %w", err)
	}
	if len(res) == 0 {
		return domain.ScannedItem{}, errors.New("invalid enqueue script response")
	}

	switch code, _ := res[0].(int64); code {
	case 1:
		if len(res) < 3 {
			return domain.ScannedItem{}, errors.New("invalid enqueue script response")
		}
		stamp, _ := res[2].(int64)
		item.SubmittedAt = time.UnixMilli(stamp).UTC()
		item.Consumed = false
		return item, nil
	case -1:
		return domain.ScannedItem{}, domain.ErrQueueFull
	default:
		return domain.ScannedItem{}, domain.ErrInvalidOrExpiredToken
	}
}

// encodeItem gives item an id when it has none. SubmittedAt is carried in
// the entry prefix written by the scripts.
func encodeItem(item domain.ScannedItem, now time.Time) ([]byte, error) {
	if item.ID == "" {
		item.ID = newItemID(now)
	}
	item.Consumed = false
	return json.Marshal(item)
}

func decodeItem(entry string) (domain.ScannedItem, error) {
	rawStamp, payload, ok := strings.Cut(entry, ":")
	if !ok {
		return domain.ScannedItem{}, errors.New("missing submission stamp")
	}
	stamp, err := strconv.ParseInt(rawStamp, 10, 64)
	if err != nil {
		return domain.ScannedItem{}, err
	}
	var item domain.ScannedItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return domain.ScannedItem{}, err
	}
	item.SubmittedAt = time.UnixMilli(stamp).UTC()
	return item, nil
}

func (s *RedisStore) Drain(ctx context.Context, desktopID string) ([]domain.ScannedItem, error) {
	var lrange *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, itemsKey(desktopID), 0, -1)
		pipe.Del(ctx, itemsKey(desktopID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain scans: %w", err)
	}

	raw := lrange.Val()
	items := make([]domain.ScannedItem, 0, len(raw))
	for i, entry := range raw {
		item, err := decodeItem(entry)
		if err != nil {
			return nil, fmt.Errorf("decode scan %d: %w", i, err)
		}
		item.Consumed = true
		items = append(items, item)
	}
	return items, nil
}

var _ domain.Store = (*RedisStore)(nil)
