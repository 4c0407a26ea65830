package store

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/safing/itemstore/container"
	"github.com/safing/itemstore/formats/dsd"
	"github.com/safing/itemstore/log"
	"github.com/safing/itemstore/persistence"
)

const (
	envelopeVersion = 1
	// data blocks of this size and larger are compressed
	compressThreshold = 4096
)

// envelopeHeader describes a persisted entity.
type envelopeHeader struct {
	Kind       Kind   `json:"kind" msgpack:"kind"`
	TypeName   string `json:"type" msgpack:"type"`
	OwnerID    uint64 `json:"owner" msgpack:"owner"`
	Priority   int    `json:"priority" msgpack:"priority"`
	ReferredID uint64 `json:"referred,omitempty" msgpack:"referred,omitempty"`
	Expires    int64  `json:"expires,omitempty" msgpack:"expires,omitempty"`
	Compressed bool   `json:"compressed,omitempty" msgpack:"compressed,omitempty"`
}

// encodeEnvelope lays out the version, the header block and the data block.
func encodeEnvelope(hdr envelopeHeader, data []byte, format dsd.SerializationFormat) ([]byte, error) {
	if len(data) >= compressThreshold {
		compressed, err := dsd.DumpAndCompress(data, dsd.RAW, dsd.GZIP)
		if err != nil {
			return nil, err
		}
		data = compressed
		hdr.Compressed = true
	}

	hdrData, err := dsd.Dump(&hdr, format)
	if err != nil {
		return nil, err
	}

	c := container.New()
	c.AppendNumber(envelopeVersion)
	c.AppendAsBlock(hdrData)
	c.AppendAsBlock(data)
	return c.CompileData(), nil
}

func decodeEnvelope(raw []byte) (*envelopeHeader, []byte, error) {
	c := container.New(raw)

	version, err := c.GetNextN8()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	if version != envelopeVersion {
		return nil, nil, fmt.Errorf("%w: unknown envelope version %d", ErrMalformedData, version)
	}

	hdrData, err := c.GetNextBlock()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	hdr := &envelopeHeader{}
	if _, err := dsd.Load(hdrData, hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}

	data, err := c.GetNextBlock()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	if hdr.Compressed {
		var decompressed []byte
		if _, err := dsd.DecompressAndLoad(data, &decompressed); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
		}
		data = decompressed
	}
	return hdr, data, nil
}

// entityData returns the persistent data of m, caching it for immutable entities.
func (s *Store) entityData(c *collection, m *membership) ([]byte, error) {
	immutable := m.entity.IsPersistentDataImmutable()
	if immutable {
		c.lock.Lock()
		data := m.data
		c.lock.Unlock()
		if data != nil {
			return data, nil
		}
	}

	data, err := m.entity.PersistentData()
	if err != nil {
		return nil, fmt.Errorf("failed to get persistent data of entity %d: %w", m.id, err)
	}

	if immutable {
		c.lock.Lock()
		m.data = data
		c.lock.Unlock()
	}
	return data, nil
}

// persist writes m to the backend. If wait is false, the write happens in
// the background.
func (s *Store) persist(c *collection, m *membership, wait bool) error {
	typeName, ok := typeNameOf(m.entity)
	if !ok {
		return fmt.Errorf("%w: %T", ErrTypeNotRegistered, m.entity)
	}

	c.lock.Lock()
	hdr := envelopeHeader{
		Kind:       m.kind,
		TypeName:   typeName,
		OwnerID:    c.ownerID,
		Priority:   m.priority,
		ReferredID: m.target.id,
	}
	if !m.expiresAt.IsZero() {
		hdr.Expires = m.expiresAt.UnixNano()
	}
	m.persisted = true
	c.lock.Unlock()

	var encode func() ([]byte, error)
	if m.entity.DeferDataPersistence() {
		encode = func() ([]byte, error) {
			data, err := s.entityData(c, m)
			if err != nil {
				return nil, err
			}
			return encodeEnvelope(hdr, data, s.headerFormat)
		}
	} else {
		data, err := s.entityData(c, m)
		if err != nil {
			return err
		}
		encode = func() ([]byte, error) {
			return encodeEnvelope(hdr, data, s.headerFormat)
		}
	}

	s.dataCache.Remove(m.id)
	if err := s.backend.Write(m.id, encode, wait); err != nil {
		s.metrics.persistFailed.Inc()
		return err
	}
	s.metrics.persisted.Inc()
	return nil
}

func (s *Store) persistAsync(c *collection, m *membership) {
	err := s.persist(c, m, false)
	switch {
	case err == nil:
	case persistence.IsSevere(err):
		log.Errorf("store: failed to persist entity %d: %s", m.id, err)
	default:
		log.Warningf("store: failed to persist entity %d: %s", m.id, err)
	}
}

func (s *Store) overSpillThreshold() bool {
	return s.memBytes.Load() > s.opts.SpillThreshold
}

func (s *Store) serializedData(c *collection, id uint64) ([]byte, error) {
	c.lock.Lock()
	m, ok := c.members[id]
	var persisted bool
	if ok {
		persisted = m.persisted
	}
	c.lock.Unlock()
	if !ok {
		return nil, ErrNotInStore
	}

	if !persisted || !s.backend.IsStable(id) {
		return s.entityData(c, m)
	}

	if cached, err := s.dataCache.Get(id); err == nil {
		return bytes.Clone(cached.([]byte)), nil //nolint:forcetypeassert
	}

	data, err, _ := s.readGroup.Do(strconv.FormatUint(id, 10), func() (interface{}, error) {
		raw, err := s.backend.ReadData(id)
		if err != nil {
			return nil, err
		}
		_, data, err := decodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		_ = s.dataCache.Set(id, data)
		return data, nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return s.entityData(c, m)
		}
		return nil, err
	}
	return bytes.Clone(data.([]byte)), nil //nolint:forcetypeassert
}
