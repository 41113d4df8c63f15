package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"unicode/utf8"
)

// DigestSize is the length of a hex-encoded block digest.
const DigestSize = sha256.Size * 2

// Digest computes the block hash over the five hashed fields.
//
// The preimage is the decimal index, the decimal timestamp, the canonical
// JSON encoding of the transactions, the decimal nonce and previousHash,
// concatenated without separators. The result is lowercase hex SHA-256.
func Digest(index, timestamp int64, txs []Transaction, nonce uint64, previousHash string) string {
	return NewHasher(index, timestamp, txs, previousHash).Sum(nonce)
}

// BlockDigest recomputes the digest over a block's stored fields.
func BlockDigest(b *Block) string {
	return Digest(b.Index, b.Timestamp, b.Transactions, b.Nonce, b.PreviousHash)
}

// Hasher computes digests for a fixed block template with a varying nonce.
// Everything except the nonce is encoded once up front. A Hasher is not
// safe for concurrent use.
type Hasher struct {
	prefix []byte
	suffix []byte
	buf    []byte
	sum    [DigestSize]byte
}

// NewHasher prepares a Hasher for the given template fields.
func NewHasher(index, timestamp int64, txs []Transaction, previousHash string) *Hasher {
	prefix := strconv.AppendInt(nil, index, 10)
	prefix = strconv.AppendInt(prefix, timestamp, 10)
	prefix = appendCanonicalTransactions(prefix, txs)

	return &Hasher{
		prefix: prefix,
		suffix: []byte(previousHash),
		buf:    make([]byte, 0, len(prefix)+20+len(previousHash)),
	}
}

// Sum returns the hex digest for nonce.
func (h *Hasher) Sum(nonce uint64) string {
	h.buf = append(h.buf[:0], h.prefix...)
	h.buf = strconv.AppendUint(h.buf, nonce, 10)
	h.buf = append(h.buf, h.suffix...)

	raw := sha256.Sum256(h.buf)
	hex.Encode(h.sum[:], raw[:])
	return string(h.sum[:])
}

// CanonicalTransactions returns the exact bytes fed to the hash for txs.
func CanonicalTransactions(txs []Transaction) []byte {
	return appendCanonicalTransactions(nil, txs)
}

// appendCanonicalTransactions writes txs as a compact JSON array with keys in
// the order id, from, to, amount, timestamp. An empty or nil list is "[]".
func appendCanonicalTransactions(dst []byte, txs []Transaction) []byte {
	dst = append(dst, '[')
	for i := range txs {
		tx := &txs[i]
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, `{"id":`...)
		dst = appendJSONString(dst, tx.ID)
		dst = append(dst, `,"from":`...)
		dst = appendJSONString(dst, tx.From)
		dst = append(dst, `,"to":`...)
		dst = appendJSONString(dst, tx.To)
		dst = append(dst, `,"amount":`...)
		dst = appendJSONNumber(dst, tx.Amount)
		dst = append(dst, `,"timestamp":`...)
		dst = strconv.AppendInt(dst, tx.Timestamp, 10)
		dst = append(dst, '}')
	}
	return append(dst, ']')
}

func appendJSONString(dst []byte, s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// Strings always encode.
		panic(err)
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	// The canonical form keeps U+2028 and U+2029 raw; encoding/json escapes them.
	for i := 0; i < len(out); i++ {
		if out[i] != '\\' {
			dst = append(dst, out[i])
			continue
		}
		if esc := out[i+1:]; len(esc) >= 5 && (string(esc[:5]) == "u2028" || string(esc[:5]) == "u2029") {
			r := '\u2028'
			if esc[4] == '9' {
				r = '\u2029'
			}
			dst = utf8.AppendRune(dst, r)
			i += 5
			continue
		}
		dst = append(dst, out[i], out[i+1])
		i++
	}
	return dst
}

// appendJSONNumber renders f the way a JSON serializer renders a number:
// integral values carry no fraction and non-finite values become null.
func appendJSONNumber(dst []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(dst, "null"...)
	}
	b, err := json.Marshal(f)
	if err != nil {
		return append(dst, "null"...)
	}
	return append(dst, b...)
}

// MeetsDifficulty reports whether hash starts with at least difficulty "0"
// characters. A difficulty of zero or less is always met.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// LeadingZeros counts the leading "0" characters of a hex hash.
func LeadingZeros(hash string) int {
	n := 0
	for n < len(hash) && hash[n] == '0' {
		n++
	}
	return n
}
