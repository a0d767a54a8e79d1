// SPDX-License-Identifier: MIT

package reaper

import "github.com/redis/go-redis/v9"

// reconcileScript is the atomic reconciliation step. In one server-side
// context it fetches up to ARGV[3] expiry-index members with score <= ARGV[2],
// partitions them by primary-record existence under prefix ARGV[1], decrements
// the counter by the actually-expired count, and sweeps the overdue range.
//
// Returns {actually_expired, candidates, remaining_with_score_le_now}.
var reconcileScript = redis.NewScript(`
local candidates = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
if #candidates == 0 then
    return {0, 0, 0}
end

local expired = {}
for _, member in ipairs(candidates) do
    if redis.call('EXISTS', ARGV[1] .. member) == 0 then
        table.insert(expired, member)
    end
end

if #expired > 0 then
    local current = tonumber(redis.call('GET', KEYS[2]) or '0')
    local dec = #expired
    if dec > current then
        dec = current
    end
    if dec > 0 then
        redis.call('DECRBY', KEYS[2], dec)
    end
    redis.call('ZREM', KEYS[1], unpack(expired))
end

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local remaining = redis.call('ZCOUNT', KEYS[1], '-inf', ARGV[2])

return {#expired, #candidates, remaining}
`)
