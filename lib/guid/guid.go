/*
	Short random identifiers, for when a filename needs to not collide
	and that's the entirety of the requirements.

	Not UUIDs.  No dashes, no registry, no time component; just enough
	entropy that two processes stamping out temp files in the same dir
	won't trip over each other.
*/
package guid

import (
	"crypto/rand"
)

const size = 12

// base32, lowercase, minus the lookalikes ('i', 'l', 'o', 'u').
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

func New() string {
	var raw [size]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(err)
	}
	for i, b := range raw {
		raw[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(raw[:])
}
