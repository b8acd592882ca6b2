package authkit

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyon-auth/authkit/internal"
)

// OTPIntent scopes a one-time code to the flow that issued it. A code
// issued for one intent can never satisfy another.
type OTPIntent string

const (
	// IntentRegister covers registration verification codes.
	IntentRegister OTPIntent = "reg"
	// IntentPasswordReset covers password reset codes.
	IntentPasswordReset OTPIntent = "pwd"
)

const otpRecordVersionV1 = 1

var errOTPRedisUnavailable = errors.New("otp redis unavailable")

// otpRecord is the stored state of one live code. The plaintext code is
// never stored; CodeHash is a salted digest.
type otpRecord struct {
	AccountID string
	Salt      [internal.OTPSaltSize]byte
	CodeHash  [32]byte
	// ExpiresAt is epoch milliseconds; second granularity would leave
	// codes verifiable for up to a second past their TTL.
	ExpiresAt int64
	Attempts  uint16
}

// otpStore keeps at most one live code per (account, intent) in Redis.
// Issuing overwrites any previous code for the same pair, which is the
// supersession rule: only the newest code is ever valid.
type otpStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newOTPStore(redisClient redis.UniversalClient, prefix string) *otpStore {
	if prefix == "" {
		prefix = "aotp"
	}
	return &otpStore{redis: redisClient, prefix: prefix}
}

func (s *otpStore) key(intent OTPIntent, accountID string) string {
	return s.prefix + ":" + string(intent) + ":" + accountID
}

func (s *otpStore) Save(
	ctx context.Context,
	intent OTPIntent,
	record *otpRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(intent, record.AccountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
	}

	return nil
}

// Consume validates a submitted code against the stored record under a
// WATCH transaction so concurrent attempts serialize cleanly.
//
// Outcomes, checked in order: missing record (including already consumed
// codes) is ErrOTPNotFound; a past expiry is ErrOTPExpired and the record
// is deleted; a spent attempt budget is ErrOTPExhausted regardless of
// whether the submitted code is correct; a wrong code burns an attempt
// and is ErrOTPMismatch. A correct code deletes the record and returns it.
func (s *otpStore) Consume(
	ctx context.Context,
	intent OTPIntent,
	accountID, code string,
	maxAttempts int,
) (*otpRecord, error) {
	const maxRetries = 4
	key := s.key(intent, accountID)

	for i := 0; i < maxRetries; i++ {
		var matched *otpRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.UnixMilli() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrOTPExpired
			}

			if int(record.Attempts) >= maxAttempts {
				return ErrOTPExhausted
			}

			providedHash := internal.HashOTP(record.Salt, code)
			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				exhausted := int(record.Attempts) >= maxAttempts

				ttl := time.Until(time.UnixMilli(record.ExpiresAt))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrOTPExpired
				}

				updated, err := encodeOTPRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				if exhausted {
					return ErrOTPExhausted
				}
				return ErrOTPMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrOTPNotFound
			case errors.Is(err, ErrOTPExpired),
				errors.Is(err, ErrOTPMismatch),
				errors.Is(err, ErrOTPExhausted):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrOTPNotFound
}

// Delete removes a live code outright, used when a flow is abandoned.
func (s *otpStore) Delete(ctx context.Context, intent OTPIntent, accountID string) error {
	if err := s.redis.Del(ctx, s.key(intent, accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
	}
	return nil
}

func encodeOTPRecord(record *otpRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("otp record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.Salt[:])
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*otpRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &otpRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.Salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
