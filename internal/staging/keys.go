package staging

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/pingcap/errors"
)

// dataKeyBytes is the size of an AES-256 key.
const dataKeyBytes = 32

// KeyProvider creates the symmetric keys that encrypt staged files.
type KeyProvider interface {
	// DataKey returns a new base64-encoded AES-256 key.
	DataKey(ctx context.Context) (string, error)
}

// KMSKeyProvider asks KMS for a data key under a customer master key.
type KMSKeyProvider struct {
	client kmsiface.KMSAPI
	keyID  string
}

// NewKMSKeyProvider creates a provider using the given KMS key id or alias.
func NewKMSKeyProvider(client kmsiface.KMSAPI, keyID string) *KMSKeyProvider {
	return &KMSKeyProvider{client: client, keyID: keyID}
}

// DataKey implements KeyProvider.
func (p *KMSKeyProvider) DataKey(ctx context.Context) (string, error) {
	out, err := p.client.GenerateDataKeyWithContext(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(p.keyID),
		KeySpec: aws.String(kms.DataKeySpecAes256),
	})
	if err != nil {
		return "", errors.Annotatef(err, "failed to generate a data key with %s", p.keyID)
	}
	if len(out.Plaintext) != dataKeyBytes {
		return "", errors.Errorf("KMS returned a %d-byte data key, expected %d", len(out.Plaintext), dataKeyBytes)
	}
	return base64.StdEncoding.EncodeToString(out.Plaintext), nil
}

// LocalKeyProvider generates data keys from the operating system's CSPRNG.
type LocalKeyProvider struct{}

// DataKey implements KeyProvider.
func (LocalKeyProvider) DataKey(context.Context) (string, error) {
	key := make([]byte, dataKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", errors.Trace(err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
