package ratelimit

// Check scripts share a calling convention:
//
//	KEYS[1] counter key, KEYS[2] block key
//	ARGV[1] now (unix ms), ARGV[2] window (ms), ARGV[3] max requests,
//	ARGV[4] block duration (ms, 0 disables), ARGV[5] algorithm specific
//
// and reply {allowed, remaining, reset_at_ms, retry_after_ms, blocked}.
//
// Peek scripts take the same keys and ARGV[1..3] and reply
// {exists, count, remaining, ttl_ms, blocked_ttl_ms} without writing.

const checkPrelude = `
local key = KEYS[1]
local block_key = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block_ms = tonumber(ARGV[4])

local blocked_ttl = redis.call('PTTL', block_key)
if blocked_ttl > 0 then
  return {0, 0, now + blocked_ttl, blocked_ttl, 1}
end

local function deny(reset_at, retry_ms)
  if block_ms > 0 then
    redis.call('SET', block_key, '1', 'PX', block_ms)
    return {0, 0, now + block_ms, block_ms, 1}
  end
  return {0, 0, reset_at, retry_ms, 0}
end
`

// ARGV[5] is a unique sorted-set member for this request.
const slidingWindowCheckLua = checkPrelude + `
local member = ARGV[5]
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
if count < max then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, max - count - 1, now + window, 0, 0}
end
redis.call('PEXPIRE', key, window)
return deny(now + window, window)
`

// ARGV[5] is the window start (unix ms). KEYS[1] already encodes it.
const fixedWindowCheckLua = checkPrelude + `
local window_start = tonumber(ARGV[5])
local count = redis.call('INCR', key)
redis.call('PEXPIRE', key, window)
local reset_at = window_start + window
if count <= max then
  return {1, max - count, reset_at, 0, 0}
end
return deny(reset_at, reset_at - now)
`

// Tokens refill in whole units every window/max ms. last_refill advances by
// the refilled amount so partial progress toward the next token is kept; a
// full bucket restarts the clock.
const tokenBucketCheckLua = checkPrelude + `
local interval = window / max
local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = max
  last = now
end
local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end
local added = math.floor(elapsed / interval)
if added > 0 then
  tokens = math.min(max, tokens + added)
  last = last + added * interval
end
if tokens >= max then
  last = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', key, 'tokens', tokens, 'last_refill', last)
redis.call('PEXPIRE', key, window)

if allowed == 1 then
  return {1, tokens, math.ceil(last + (max - tokens) * interval), 0, 0}
end
local next_at = math.ceil(last + interval)
local retry = next_at - now
if retry < 1 then
  retry = 1
end
return deny(next_at, retry)
`

const peekPrelude = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local blocked_ttl = redis.call('PTTL', KEYS[2])
if blocked_ttl < 0 then
  blocked_ttl = 0
end
local exists = redis.call('EXISTS', key)
local ttl = redis.call('PTTL', key)
if ttl < 0 then
  ttl = 0
end
`

const slidingWindowPeekLua = peekPrelude + `
local count = redis.call('ZCOUNT', key, now - window, '+inf')
return {exists, count, math.max(0, max - count), ttl, blocked_ttl}
`

const fixedWindowPeekLua = peekPrelude + `
local count = tonumber(redis.call('GET', key) or '0')
return {exists, count, math.max(0, max - count), ttl, blocked_ttl}
`

const tokenBucketPeekLua = peekPrelude + `
local interval = window / max
local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  return {exists, 0, max, ttl, blocked_ttl}
end
local elapsed = now - last
if elapsed > 0 then
  tokens = math.min(max, tokens + math.floor(elapsed / interval))
end
return {exists, max - tokens, tokens, ttl, blocked_ttl}
`

var (
	slidingWindowCheck = NewScript("sliding_window_check", slidingWindowCheckLua)
	fixedWindowCheck   = NewScript("fixed_window_check", fixedWindowCheckLua)
	tokenBucketCheck   = NewScript("token_bucket_check", tokenBucketCheckLua)

	slidingWindowPeek = NewScript("sliding_window_peek", slidingWindowPeekLua)
	fixedWindowPeek   = NewScript("fixed_window_peek", fixedWindowPeekLua)
	tokenBucketPeek   = NewScript("token_bucket_peek", tokenBucketPeekLua)
)
