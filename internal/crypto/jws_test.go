package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func testKeyPair(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubPEM = pem.EncodeToMemory(&pem.Block{
		Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})
	return privPEM, pubPEM
}

func TestSignAndVerifyReport(t *testing.T) {
	priv, pub := testKeyPair(t)
	payload := []byte(`{"summary":{"total":0,"errors":0,"warnings":0,"pass":true}}`)
	jws, err := SignReport(payload, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := VerifyReport(jws, pub)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload round trip: %q", got)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	priv, pub := testKeyPair(t)
	jws, err := SignReport([]byte(`{"pass":true}`), priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, err := SignReport([]byte(`{"pass":false}`), priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	jws.Payload = forged.Payload
	if _, err := VerifyReport(jws, pub); err == nil {
		t.Fatal("tampered payload verified")
	}
}

func TestSignReportBadKey(t *testing.T) {
	if _, err := SignReport([]byte("x"), []byte("not a key")); err == nil {
		t.Fatal("garbage key accepted")
	}
}
