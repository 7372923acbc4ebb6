package gateway

// Rejection codes, one per failing check, in check order. Stable: clients
// and dashboards key off the numbers, never renumber.
const (
	CodeMethodNotAllowed    = 1  // request method is not POST
	CodeBadProofOfWork      = 2  // X-Pow missing, undecodable, stale, or too easy
	CodeEmptyBody           = 3  // no request body
	CodeUnsupportedMessage  = 4  // message header unparsable or algorithm pair not ours
	CodeIdentityUnavailable = 5  // merchant session could not be resolved
	CodeKeyUnavailable      = 6  // no private key for the kid in the header
	CodeDecryptFailed       = 7  // decryption failed or plaintext is not JSON
	CodeBadPayload          = 8  // payload field missing or wrong primitive type
	CodeDuplicate           = 9  // nonce or order id already accepted
	CodeOrderNotFound       = 10 // order absent upstream after the one retry
	CodeOrderStale          = 11 // order exists but outside the freshness bound
	CodePersistFailed       = 12 // conversion insert failed
)
