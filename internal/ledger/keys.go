package ledger

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the record family encoded in the key prefix.
type Kind string

const (
	KindTable       Kind = "table"
	KindVault       Kind = "vault"
	KindRound       Kind = "round"
	KindBet         Kind = "bet"
	KindAccount     Kind = "account"
	KindSpinRequest Kind = "spin_request"
)

// Namespace seeds every derived key. Changing it re-addresses every record.
var Namespace = uuid.MustParse("6b1f3c52-8a4e-5d0b-9c7e-2f1a4d6e8b90")

// Key addresses one record: "<kind>/<uuid>".
type Key string

// Kind returns the record family of the key.
func (k Key) Kind() Kind {
	kind, _, _ := strings.Cut(string(k), "/")
	return Kind(kind)
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// ParseKey validates a key received from outside the process.
func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, "/")
	if !ok || kind == "" {
		return "", fmt.Errorf("invalid key %q", s)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid key %q: %w", s, err)
	}
	return Key(s), nil
}

// DeriveKey deterministically addresses a record from its seeds, so any
// party holding the same seeds computes the same key.
func DeriveKey(kind Kind, seeds ...[]byte) Key {
	var name []byte
	name = append(name, kind...)
	for _, seed := range seeds {
		name = binary.BigEndian.AppendUint32(name, uint32(len(seed)))
		name = append(name, seed...)
	}
	return Key(string(kind) + "/" + uuid.NewSHA1(Namespace, name).String())
}

func u64(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, n)
}

func TableKey() Key { return DeriveKey(KindTable) }

func VaultKey() Key { return DeriveKey(KindVault) }

// RoundKey addresses round n.
func RoundKey(n uint64) Key { return DeriveKey(KindRound, u64(n)) }

// BetKey addresses the single bet a player may hold in a round.
func BetKey(round Key, player Identity) Key {
	return DeriveKey(KindBet, []byte(round), []byte(player))
}

// AccountKey addresses the balance held by owner.
func AccountKey(owner Identity) Key { return DeriveKey(KindAccount, []byte(owner)) }

// SpinRequestKey addresses the randomness request made when round n was spun.
func SpinRequestKey(n uint64) Key { return DeriveKey(KindSpinRequest, u64(n)) }
