package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KVStore keeps fingerprints in a JetStream key-value bucket as JSON values.
type KVStore struct {
	nc       *nats.Conn
	kv       jetstream.KeyValue
	bucket   string
	ownsConn bool
}

// NewKVStore opens bucket, creating it when it does not exist.
func NewKVStore(ctx context.Context, nc *nats.Conn, bucket string) (*KVStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "last seen ChromeOS update fingerprint per device",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create key-value bucket %s: %w", bucket, err)
	}

	return &KVStore{nc: nc, kv: kv, bucket: bucket}, nil
}

// kvKey encodes device ids, which may contain spaces, into valid KV keys.
func kvKey(deviceID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(deviceID))
}

func (s *KVStore) Get(ctx context.Context, deviceID string) (fingerprint.Fingerprint, bool, error) {
	entry, err := s.kv.Get(ctx, kvKey(deviceID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fingerprint.Fingerprint{}, false, nil
		}
		return fingerprint.Fingerprint{}, false, err
	}

	var fp fingerprint.Fingerprint
	if err := json.Unmarshal(entry.Value(), &fp); err != nil {
		return fingerprint.Fingerprint{}, false, fmt.Errorf("decode fingerprint: %w", err)
	}
	return fp, true, nil
}

func (s *KVStore) Put(ctx context.Context, deviceID string, fp fingerprint.Fingerprint) error {
	value, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, kvKey(deviceID), value)
	return err
}

func (s *KVStore) Close() error {
	if s.ownsConn {
		s.nc.Close()
	}
	return nil
}
