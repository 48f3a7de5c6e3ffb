package delegation

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"authdelegation/crypto"
	"authdelegation/storage"
)

// KVStore is a durable implementation of AuthorityStore, PolicyStore, and
// LedgerStore backed by a storage.Database (storage.LevelDB in production,
// storage.MemDB in tests that want to exercise the encoding path). Keys are
// namespaced by record kind; values are gob-encoded.
type KVStore struct {
	db storage.Database
}

// NewKVStore wraps an already-open storage.Database.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

func hexKey(prefix string, parts ...[]byte) []byte {
	buf := bytes.NewBufferString(prefix)
	for _, p := range parts {
		buf.WriteByte(':')
		fmt.Fprintf(buf, "%x", p)
	}
	return buf.Bytes()
}

func gobPut(db storage.Database, key []byte, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return db.Put(key, buf.Bytes())
}

func gobGet(db storage.Database, key []byte, v interface{}) (bool, error) {
	raw, err := db.Get(key)
	if err != nil {
		return false, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KVStore) GetRelationship(id Hash) (*Relationship, bool, error) {
	var r Relationship
	ok, err := gobGet(s.db, hexKey("rel", id[:]), &r)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &r, true, nil
}

func (s *KVStore) PutRelationship(r *Relationship) error {
	return gobPut(s.db, hexKey("rel", r.ID[:]), r)
}

func (s *KVStore) NextSequence(principal crypto.Address) (uint64, error) {
	key := hexKey("seq", principal.Bytes())
	var next uint64
	gobGet(s.db, key, &next)
	if err := gobPut(s.db, key, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *KVStore) GetActiveIndex(principal, agent crypto.Address) (Hash, bool, error) {
	var id Hash
	ok, err := gobGet(s.db, hexKey("active", principal.Bytes(), agent.Bytes()), &id)
	return id, ok, err
}

func (s *KVStore) PutActiveIndex(principal, agent crypto.Address, id Hash) error {
	return gobPut(s.db, hexKey("active", principal.Bytes(), agent.Bytes()), id)
}

func (s *KVStore) GetLastSlash(slasher crypto.Address, id Hash) (uint64, bool, error) {
	var ts uint64
	ok, err := gobGet(s.db, hexKey("slash", slasher.Bytes(), id[:]), &ts)
	return ts, ok, err
}

func (s *KVStore) PutLastSlash(slasher crypto.Address, id Hash, at uint64) error {
	return gobPut(s.db, hexKey("slash", slasher.Bytes(), id[:]), at)
}

func (s *KVStore) GetPolicy(id Hash) (*Policy, bool, error) {
	var p Policy
	ok, err := gobGet(s.db, hexKey("policy", id[:]), &p)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &p, true, nil
}

func (s *KVStore) PutPolicy(p *Policy) error {
	return gobPut(s.db, hexKey("policy", p.ID[:]), p)
}

func (s *KVStore) GetBinding(relID Hash) (Hash, bool, error) {
	var id Hash
	ok, err := gobGet(s.db, hexKey("bind", relID[:]), &id)
	return id, ok, err
}

func (s *KVStore) PutBinding(relID, policyID Hash) error {
	return gobPut(s.db, hexKey("bind", relID[:]), policyID)
}

func (s *KVStore) GetSpend(relID Hash) (SpendState, bool, error) {
	var st SpendState
	ok, err := gobGet(s.db, hexKey("spend", relID[:]), &st)
	return st, ok, err
}

func (s *KVStore) PutSpend(relID Hash, state SpendState) error {
	return gobPut(s.db, hexKey("spend", relID[:]), state)
}

func (s *KVStore) AppendEntry(relID Hash, entry *LogEntry) (uint64, error) {
	count, err := s.EntryCount(relID)
	if err != nil {
		return 0, err
	}
	if err := gobPut(s.db, hexKey("log", relID[:], encodeUint64(count)), entry); err != nil {
		return 0, err
	}
	if err := gobPut(s.db, hexKey("logcount", relID[:]), count+1); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *KVStore) GetEntry(relID Hash, index uint64) (*LogEntry, bool, error) {
	var e LogEntry
	ok, err := gobGet(s.db, hexKey("log", relID[:], encodeUint64(index)), &e)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &e, true, nil
}

func (s *KVStore) EntryCount(relID Hash) (uint64, error) {
	var count uint64
	gobGet(s.db, hexKey("logcount", relID[:]), &count)
	return count, nil
}

func (s *KVStore) GetChainHead(relID Hash) (Hash, error) {
	var head Hash
	gobGet(s.db, hexKey("chain", relID[:]), &head)
	return head, nil
}

func (s *KVStore) SetChainHead(relID Hash, head Hash) error {
	return gobPut(s.db, hexKey("chain", relID[:]), head)
}
