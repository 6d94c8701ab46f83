// Package syncmgr exchanges encrypted address payloads with a Remote and
// drives the engine through one sync round.
package syncmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"addrstore/internal/addresses"
	"addrstore/internal/reconcile"
)

// Report summarises one Sync call.
type Report struct {
	Round      *addresses.RoundOutcome
	Downloaded int
	Malformed  int
	Uploaded   int
	Deleted    int
}

// Syncer moves payloads between the engine and a Remote.
type Syncer struct {
	engine    *addresses.Engine
	remote    addresses.Remote
	encryptor addresses.Encryptor
	logger    addresses.Logger
}

// NewSyncer creates a Syncer with the provided dependencies.
func NewSyncer(engine *addresses.Engine, remote addresses.Remote, encryptor addresses.Encryptor, logger addresses.Logger) *Syncer {
	return &Syncer{
		engine:    engine,
		remote:    remote,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Sync runs one round: download every remote payload, reconcile it, then
// upload local changes and record what the remote accepted.
//
// Payloads that cannot be decrypted or decoded are skipped and counted in
// Report.Malformed. Uploads stop at the first Put error; whatever was
// uploaded before it is still marked synchronized.
func (s *Syncer) Sync(ctx context.Context, dec addresses.DecryptionContext) (*Report, error) {
	if err := s.remote.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating remote: %w", err)
	}

	report := &Report{}

	changes, err := s.download(ctx, dec, report)
	if err != nil {
		return report, err
	}

	round, err := s.engine.ApplyIncoming(ctx, changes)
	report.Round = round
	if err != nil {
		return report, fmt.Errorf("applying incoming changes: %w", err)
	}

	if err := s.upload(ctx, report); err != nil {
		return report, err
	}

	s.logger.Info("sync finished",
		"downloaded", report.Downloaded,
		"malformed", report.Malformed,
		"uploaded", report.Uploaded,
		"deleted", report.Deleted,
	)
	return report, nil
}

func (s *Syncer) download(ctx context.Context, dec addresses.DecryptionContext, report *Report) ([]reconcile.IncomingChange, error) {
	keys, err := s.remote.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote: %w", err)
	}

	changes := make([]reconcile.IncomingChange, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var sealed bytes.Buffer
		if err := s.remote.Get(ctx, key, &sealed); err != nil {
			return nil, fmt.Errorf("downloading %s: %w", key, err)
		}
		report.Downloaded++

		var plain bytes.Buffer
		if err := dec.Decrypt(&sealed, &plain); err != nil {
			report.Malformed++
			s.logger.Warn("skipping undecryptable payload", "key", key, "error", err)
			continue
		}
		change, err := DecodeChange(key, plain.Bytes())
		if err != nil {
			report.Malformed++
			s.logger.Warn("skipping malformed payload", "key", key, "error", err)
			continue
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (s *Syncer) upload(ctx context.Context, report *Report) error {
	out, err := s.engine.Outgoing(ctx)
	if err != nil {
		return err
	}
	if out.Empty() {
		return nil
	}

	var uploaded []addresses.Uploaded
	var uploadErr error

	for _, rec := range out.Records {
		data, err := EncodeRecord(&rec.AddressRecord)
		if err != nil {
			uploadErr = fmt.Errorf("encoding %s: %w", rec.GUID, err)
			break
		}
		if err := s.put(ctx, rec.GUID, data); err != nil {
			uploadErr = err
			break
		}
		uploaded = append(uploaded, addresses.UploadedRecord(rec))
		report.Uploaded++
	}

	if uploadErr == nil {
		for _, t := range out.Tombstones {
			data, err := EncodeTombstone(t.GUID)
			if err != nil {
				uploadErr = fmt.Errorf("encoding %s: %w", t.GUID, err)
				break
			}
			if err := s.put(ctx, t.GUID, data); err != nil {
				uploadErr = err
				break
			}
			uploaded = append(uploaded, addresses.UploadedTombstone(t))
			report.Deleted++
		}
	}

	// Record partial progress even if the context was canceled mid-upload.
	if err := s.engine.MarkSynchronized(context.WithoutCancel(ctx), uploaded); err != nil {
		uploadErr = errors.Join(uploadErr, err)
	}
	return uploadErr
}

func (s *Syncer) put(ctx context.Context, key string, plain []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var sealed bytes.Buffer
	if err := s.encryptor.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	if err := s.remote.Put(ctx, key, &sealed, int64(sealed.Len())); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}
