package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// cipherKind names the stream/string cipher the security handler applies,
// selected from the encryption dictionary's /V and /CF entries.
type cipherKind int

const (
	cipherRC4 cipherKind = iota
	cipherAESV2
	cipherAESV3
)

// standardPad is the fixed 32-byte password-padding string from the
// standard security handler's Algorithm 2.
var standardPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// securityHandler holds the derived file encryption key and the parameters
// needed to derive each object's per-object key, implementing the standard
// security handler's decrypt side only (§B: this engine never writes
// PDFs, so Algorithm 2/2.A key derivation is exercised only for blank-
// password authentication, never for re-encryption).
type securityHandler struct {
	v               int
	r               int
	cipher          cipherKind
	keyLenBytes     int
	fileKey         []byte
	encryptMetadata bool
	encryptObjNum   int
	authenticated   bool
}

// dictGetRaw returns the raw (possibly indirect, unresolved) child of a
// dictionary Value that is already known to be a resolved dict, used when
// the caller needs the child's own object identity rather than its
// resolved value.
func dictGetRaw(v *Value, key Name) *Value {
	if v == nil || v.kind != KindDict {
		return nil
	}
	val, _, found := v.dict.finds(key)
	if !found {
		return nil
	}
	return val
}

// newSecurityHandler builds a securityHandler from the trailer's /Encrypt
// dictionary and /ID, attempting authentication with the blank user
// password per §4.3 step 7. encryptObjNum, the Encrypt dictionary's own
// object number (0 if it is a direct object), is exempted from string
// decryption since the dictionary is read before any key exists.
func newSecurityHandler(doc *Document, enc *Value, idArr *Value) (*securityHandler, error) {
	if !enc.IsDict() {
		return nil, fmt.Errorf("crypt: /Encrypt is not a dictionary")
	}
	encryptObjNum := 0
	if raw := dictGetRaw(doc.trailer, "Encrypt"); raw != nil && raw.IsIndirect() {
		encryptObjNum, _ = raw.Reference()
	}

	v := int(enc.DictGet("V").Int())
	r := int(enc.DictGet("R").Int())
	if r == 0 {
		r = 2
	}
	lengthBits := enc.DictGet("Length").Int()
	if lengthBits == 0 {
		lengthBits = 40
	}
	keyLen := int(lengthBits / 8)

	encryptMetadata := true
	if em := enc.DictGet("EncryptMetadata"); em.IsBool() {
		encryptMetadata = em.Bool()
	}

	h := &securityHandler{
		v:               v,
		r:               r,
		keyLenBytes:     keyLen,
		encryptMetadata: encryptMetadata,
		encryptObjNum:   encryptObjNum,
		cipher:          selectCipher(enc, v),
	}
	if h.cipher == cipherAESV2 || h.cipher == cipherAESV3 {
		if h.keyLenBytes < 16 {
			h.keyLenBytes = 16
		}
	}

	var id []byte
	if idArr.IsArray() && idArr.Len() > 0 {
		id = idArr.ArrayGet(0).RawString()
	}

	if r >= 5 {
		key, ok := deriveKeyR6(enc)
		h.fileKey = key
		h.authenticated = ok
		h.keyLenBytes = 32
		return h, nil
	}

	o := enc.DictGet("O").RawString()
	p := int32(enc.DictGet("P").Int())
	key := deriveKeyR2to4(nil, o, p, id, r, h.keyLenBytes, encryptMetadata)
	h.fileKey = key
	h.authenticated = verifyBlankPasswordR2to4(key, enc, id, r)
	return h, nil
}

func selectCipher(enc *Value, v int) cipherKind {
	if v < 4 {
		return cipherRC4
	}
	cfName := enc.DictGet("StmF").NameValue()
	if cfName == "" || cfName == "Identity" {
		return cipherRC4
	}
	cf := enc.DictGet("CF").DictGet(cfName)
	switch cf.DictGet("CFM").NameValue() {
	case "AESV2":
		return cipherAESV2
	case "AESV3":
		return cipherAESV3
	case "V2":
		return cipherRC4
	default:
		return cipherRC4
	}
}

// deriveKeyR2to4 implements Algorithm 2 (revisions 2-4): MD5 over the
// padded password, /O, /P (little-endian), the first /ID element, and (for
// R>=4 with metadata exempted) four 0xFF bytes, with R>=3 repeating the
// hash 50 times and truncating to keyLen bytes.
func deriveKeyR2to4(password, o []byte, p int32, id []byte, r, keyLen int, encryptMetadata bool) []byte {
	padded := padPassword(password)
	h := md5.New()
	h.Write(padded)
	h.Write(o)
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(id)
	if r >= 4 && !encryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	sum := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5Sum(sum[:keyLen])
		}
	}
	if keyLen > len(sum) {
		keyLen = len(sum)
	}
	return sum[:keyLen]
}

func md5Sum(b []byte) []byte {
	s := md5.Sum(b)
	return s[:]
}

func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], standardPad)
	return out
}

// verifyBlankPasswordR2to4 recomputes /U from the blank-password key and
// compares the first 16 bytes, the standard security handler's
// authentication check (Algorithm 4/5). A mismatch does not abort parsing:
// the derived key is kept, but the handler stays unauthenticated and
// decryptBytes then returns string and stream payloads unchanged.
func verifyBlankPasswordR2to4(key []byte, enc *Value, id []byte, r int) bool {
	u := enc.DictGet("U").RawString()
	if r == 2 {
		got := rc4Encrypt(key, standardPad)
		return bytes.Equal(got, u)
	}
	h := md5.New()
	h.Write(standardPad)
	h.Write(id)
	sum := h.Sum(nil)
	got := rc4Encrypt(key, sum)
	for i := 1; i <= 19; i++ {
		xored := make([]byte, len(key))
		for j := range xored {
			xored[j] = key[j] ^ byte(i)
		}
		got = rc4Encrypt(xored, got)
	}
	if len(u) < 16 || len(got) < 16 {
		return false
	}
	return bytes.Equal(got[:16], u[:16])
}

// deriveKeyR6 implements the blank-password path of Algorithm 2.A/2.B for
// revisions 5 and 6: validate against /U's validation salt, then decrypt
// /UE with the key salt's intermediate key (AES-256-CBC, no padding, zero
// IV) to recover the 32-byte file key.
func deriveKeyR6(enc *Value) ([]byte, bool) {
	u := enc.DictGet("U").RawString()
	ue := enc.DictGet("UE").RawString()
	if len(u) < 48 {
		return nil, false
	}
	validationSalt := u[32:40]
	keySalt := u[40:48]

	validationHash := hardenedHash(nil, validationSalt, nil)
	authenticated := bytes.Equal(validationHash, u[:32])

	intermediate := hardenedHash(nil, keySalt, nil)
	if len(ue) < 32 {
		return intermediate, authenticated
	}
	block, err := aes.NewCipher(intermediate)
	if err != nil {
		return intermediate, authenticated
	}
	iv := make([]byte, 16)
	fileKey := make([]byte, 32)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(fileKey, ue[:32])
	return fileKey, authenticated
}

// hardenedHash implements Algorithm 2.B: an initial SHA-256 round followed
// by repeated rounds of AES-128-CBC-encrypting a repeated input block with
// a hash-derived key/IV, switching among SHA-256/384/512 by the
// last-round's output mod 3, continuing until round >= 64 and the last byte
// of the round's output is <= round-32.
func hardenedHash(password, salt, userKey []byte) []byte {
	input := append(append(append([]byte{}, password...), salt...), userKey...)
	k := sha256sum(input)

	round := 0
	for {
		k1 := bytes.Repeat(append(append(append([]byte{}, password...), k...), userKey...), 64)
		e, err := aesCBCEncryptNoPad(k[:16], k[16:32], k1)
		if err != nil {
			return k
		}
		mod := sumBytesMod3(e)
		switch mod {
		case 0:
			k = sha256sum(e)
		case 1:
			k = sha384sum(e)
		case 2:
			k = sha512sum(e)
		}
		round++
		if round >= 64 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}
	return k[:32]
}

func sumBytesMod3(b []byte) int {
	sum := 0
	for _, c := range b[:16] {
		sum += int(c)
	}
	return sum % 3
}

func sha256sum(b []byte) []byte { s := sha256.Sum256(b); return s[:] }
func sha384sum(b []byte) []byte { s := sha512.Sum384(b); return s[:] }
func sha512sum(b []byte) []byte { s := sha512.Sum512(b); return s[:] }

func aesCBCEncryptNoPad(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func rc4Encrypt(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return data
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// isExempt reports whether object num's strings/streams must not be
// decrypted: the Encrypt dictionary's own object (chicken-and-egg: it is
// read before any key exists).
func (h *securityHandler) isExempt(num int) bool {
	return h != nil && num == h.encryptObjNum && h.encryptObjNum != 0
}

// objectKey derives the per-object RC4/AES-128 key via Algorithm 1. V5
// ciphers (AES-256) use the file key directly with no per-object
// derivation.
func (h *securityHandler) objectKey(num, gen int) []byte {
	if h.cipher == cipherAESV3 {
		return h.fileKey
	}
	buf := make([]byte, 0, len(h.fileKey)+9)
	buf = append(buf, h.fileKey...)
	buf = append(buf, byte(num), byte(num>>8), byte(num>>16))
	buf = append(buf, byte(gen), byte(gen>>8))
	if h.cipher == cipherAESV2 {
		buf = append(buf, 's', 'a', 'l', 'T')
	}
	sum := md5.Sum(buf)
	n := len(h.fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

// decryptBytes decrypts one string or stream payload belonging to object
// (num, gen).
func (h *securityHandler) decryptBytes(num, gen int, data []byte) []byte {
	if h == nil || !h.authenticated || len(data) == 0 {
		return data
	}
	key := h.objectKey(num, gen)
	switch h.cipher {
	case cipherRC4:
		return rc4Encrypt(key, data)
	case cipherAESV2, cipherAESV3:
		if len(data) < 16 {
			return data
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return data
		}
		iv := data[:16]
		body := data[16:]
		if len(body)%16 != 0 {
			body = body[:len(body)-len(body)%16]
		}
		out := make([]byte, len(body))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
		return unpadPKCS7(out)
	default:
		return data
	}
}

func unpadPKCS7(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n <= 0 || n > 16 || n > len(b) {
		return b
	}
	return b[:len(b)-n]
}

func (h *securityHandler) decryptString(num, gen int, s []byte) []byte {
	return h.decryptBytes(num, gen, s)
}

func (h *securityHandler) decryptStream(num, gen int, s []byte) []byte {
	return h.decryptBytes(num, gen, s)
}
