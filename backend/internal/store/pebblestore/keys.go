package pebblestore

import (
	"encoding/binary"
	"math"
)

// Key layout. Store keys never contain 0x00, so it terminates the key part.
//
//	o <key> 0x00 <field>                         -> value
//	m <key> 0x00 <member>                        -> float64 bits
//	s <key> 0x00 <sortable score> <len> <member> -> empty
//
// Score index entries sort by score, then member length, then member bytes,
// which is exactly store.Less.
const (
	objectTag = 'o'
	memberTag = 'm'
	scoreTag  = 's'
)

func prefix(tag byte, key string) []byte {
	b := make([]byte, 0, len(key)+2)
	b = append(b, tag)
	b = append(b, key...)
	return append(b, 0)
}

// prefixEnd is the smallest key greater than every key starting with p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

func objectKey(key, field string) []byte {
	return append(prefix(objectTag, key), field...)
}

func memberKey(key, member string) []byte {
	return append(prefix(memberTag, key), member...)
}

// sortableScore maps a float64 onto a uint64 with the same ordering.
func sortableScore(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func scoreFromSortable(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

func scoreKey(key, member string, score float64) []byte {
	b := prefix(scoreTag, key)
	b = binary.BigEndian.AppendUint64(b, sortableScore(score))
	b = binary.BigEndian.AppendUint16(b, uint16(len(member)))
	return append(b, member...)
}

// decodeScoreKey splits an index entry found under p.
func decodeScoreKey(p, k []byte) (string, float64) {
	rest := k[len(p):]
	score := scoreFromSortable(binary.BigEndian.Uint64(rest[:8]))
	return string(rest[10:]), score
}

func encodeScore(f float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(f))
}

func decodeScore(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// scoreBounds returns iterator bounds covering index entries of p with
// min <= score <= max.
func scoreBounds(p []byte, max, min float64) (lower, upper []byte) {
	lower = binary.BigEndian.AppendUint64(append([]byte(nil), p...), sortableScore(min))
	top := sortableScore(max)
	if top == math.MaxUint64 {
		return lower, prefixEnd(p)
	}
	upper = binary.BigEndian.AppendUint64(append([]byte(nil), p...), top+1)
	return lower, upper
}
