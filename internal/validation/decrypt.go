// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package validation

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEADDecrypter opens payloads sealed with XChaCha20-Poly1305, the same
// family of primitive the teacher's pack already depends on via
// golang.org/x/crypto (used there for the node discovery/record signature
// stack). The sealed wire format is nonce || ciphertext, nonce sized per
// chacha20poly1305.NewX.
type AEADDecrypter struct{}

// Open implements Decrypter.
func (AEADDecrypter) Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed payload shorter than nonce", ErrDecryptionFailed)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
