package typedstore

import "github.com/sage-x-project/dwn-agent-core/corecrypto"

func encodeData(raw []byte) string { return corecrypto.B64URLEncode(raw) }

func b64Decode(s string) ([]byte, error) { return corecrypto.B64URLDecode(s) }
