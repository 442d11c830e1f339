package webhook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"invoice.updated"}`)
	assert.Equal(t, Sign([]byte("dev_secret"), body), Sign([]byte("dev_secret"), body))
	assert.Len(t, Sign([]byte("dev_secret"), body), 64)
}

func TestSignChangesWithInput(t *testing.T) {
	base := Sign([]byte("dev_secret"), []byte(`{"amount":1500}`))
	assert.NotEqual(t, base, Sign([]byte("dev_secret"), []byte(`{"amount":1501}`)))
	assert.NotEqual(t, base, Sign([]byte("other_secret"), []byte(`{"amount":1500}`)))
}

func TestSignerVerify(t *testing.T) {
	signer := NewSigner("dev_secret")
	body := []byte(`{"id":"abc"}`)
	sig := signer.Sign(body)

	assert.True(t, signer.Verify(body, sig))
	assert.False(t, signer.Verify([]byte(`{"id":"abd"}`), sig))
	assert.False(t, signer.Verify(body, "not-hex"))
	assert.False(t, NewSigner("other").Verify(body, sig))
}

func TestSignerDoesNotPrintSecret(t *testing.T) {
	signer := NewSigner("dev_secret")
	assert.NotContains(t, fmt.Sprintf("%v %+v %s", signer, signer, signer), "dev_secret")
}
