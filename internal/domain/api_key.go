package domain

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Ambientes aceitos no formato da chave
const (
	EnvTest = "test"
	EnvLive = "live"
)

const (
	apiKeyPrefix = "prx"
	apiKeyLength = 32
	base62Chars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var validEnvironments = map[string]bool{
	EnvTest: true,
	EnvLive: true,
}

// GenerateAPIKey gera a chave estática que protege a API
// Formato: prx_<env>_<random32>
func GenerateAPIKey(env string) (string, error) {
	if !validEnvironments[env] {
		return "", errors.New("invalid environment: must be 'test' or 'live'")
	}

	randomPart, err := generateSecureRandomString(apiKeyLength)
	if err != nil {
		return "", err
	}

	return apiKeyPrefix + "_" + env + "_" + randomPart, nil
}

// IsValidAPIKeyFormat verifica se a chave segue o formato gerado
func IsValidAPIKeyFormat(key string) bool {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return false
	}
	if parts[0] != apiKeyPrefix || !validEnvironments[parts[1]] {
		return false
	}

	randomPart := parts[2]
	if len(randomPart) != apiKeyLength {
		return false
	}
	for _, char := range randomPart {
		if !strings.ContainsRune(base62Chars, char) {
			return false
		}
	}
	return true
}

// generateSecureRandomString gera uma string aleatória segura usando crypto/rand
func generateSecureRandomString(length int) (string, error) {
	result := make([]byte, length)
	base62Len := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", err
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result), nil
}
