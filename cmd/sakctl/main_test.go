package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (map[string]interface{}, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()
	var body map[string]interface{}
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &body), out.String())
	}
	return body, err
}

func TestValidateCommand(t *testing.T) {
	doc := `{
		"fullName": "Ana Gomez",
		"dateOfBirth": "1990-04-02",
		"country": "ES",
		"email": "ana@example.com",
		"documentIdUrl": "https://files.example.com/kyc-files/u/base/1.png"
	}`
	path := filepath.Join(t.TempDir(), "base.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	body, err := run(t, "", "validate", "--tier", "base", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, true, body["valid"])

	body, err = run(t, `{"fullName":"Madonna"}`, "validate", "--tier", "base")
	assert.ErrorIs(t, err, errSilent)
	assert.Equal(t, false, body["valid"])
	errs := body["validation_errors"].(map[string]interface{})
	assert.Contains(t, errs, "fullName")
	assert.Contains(t, errs, "email")

	// sepa rules include the base ones
	body, err = run(t, doc, "validate", "--tier", "sepa")
	assert.ErrorIs(t, err, errSilent)
	assert.Contains(t, body["validation_errors"], "iban")

	_, err = run(t, doc, "validate", "--tier", "gold")
	assert.Error(t, err)

	_, err = run(t, "[1,2]", "validate")
	assert.Error(t, err)
}

func TestQuoteCommand(t *testing.T) {
	t.Setenv("ANCHOR_EXCHANGE_RATE", "1440")
	t.Setenv("ANCHOR_COMMISSION_RATE", "0.005")

	body, err := run(t, "", "quote", "--amount", "10000")
	require.NoError(t, err)
	assert.Equal(t, "10,000.00", body["amount"])
	assert.Equal(t, "50.00", body["commission"])
	assert.Equal(t, "9,950.00", body["net"])
	assert.Equal(t, "6.9097", body["received"])

	body, err = run(t, "", "quote", "--amount", "1000", "--rate", "1000", "--commission", "0")
	require.NoError(t, err)
	assert.Equal(t, "1.0000", body["received"])

	_, err = run(t, "", "quote", "--amount", "0")
	assert.Error(t, err)
	_, err = run(t, "", "quote", "--amount", "-5")
	assert.Error(t, err)
	_, err = run(t, "", "quote", "--amount", "ten")
	assert.Error(t, err)
	_, err = run(t, "", "quote")
	assert.Error(t, err)
}

func TestWalletCommands(t *testing.T) {
	t.Setenv("WALLET_SESSION_FILE", filepath.Join(t.TempDir(), "nested", "wallet.json"))
	t.Setenv("USE_MOCK_WALLET", "false")
	key := "G" + strings.Repeat("B", 55)

	body, err := run(t, "", "wallet", "status")
	require.NoError(t, err)
	assert.Equal(t, false, body["state"].(map[string]interface{})["isConnected"])

	body, err = run(t, "", "wallet", "connect", "--address", key)
	require.NoError(t, err)
	assert.Equal(t, key, body["publicKey"])

	body, err = run(t, "", "wallet", "status")
	require.NoError(t, err)
	assert.Equal(t, "GBBB...BBBB", body["shortKey"])

	_, err = run(t, "", "wallet", "connect", "--address", "not-a-key")
	assert.Error(t, err)

	_, err = run(t, "", "wallet", "disconnect")
	require.NoError(t, err)
	body, err = run(t, "", "wallet", "status")
	require.NoError(t, err)
	assert.NotContains(t, body, "shortKey")
}

func TestDatabaseCommandsNeedURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := run(t, "", "status", "--wallet", "G"+strings.Repeat("B", 55))
	assert.EqualError(t, err, "DATABASE_URL is not set")

	_, err = run(t, "", "reject", "--wallet", "GX", "--tier", "base")
	assert.Error(t, err)

	_, err = run(t, "", "anchor", "revoke", "not-a-uuid")
	assert.Error(t, err)
}
