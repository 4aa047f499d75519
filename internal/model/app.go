package model

// App is a registered client application. Each app owns an isolated set of
// license keys and a credential pair. Only the SHA-256 hash of the secret key
// is persisted.
type App struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	NameKey    string `json:"-" db:"name_key"` // lower-cased name, unique
	OwnerID    string `json:"ownerId" db:"owner_id"`
	SecretHash string `json:"-" db:"secret_hash"` // never expose
	Created    int64  `json:"created" db:"created"`
}

// AppCredentials is returned exactly once, when an app is created or its
// secret is rotated. The raw secret cannot be recovered afterwards.
type AppCredentials struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	SecretKey string `json:"secretKey"`
	Created   int64  `json:"created"`
}

// AppSummary is the list projection of an app. It never carries the secret.
type AppSummary struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	OwnerID    string `json:"ownerId" db:"owner_id"`
	Created    int64  `json:"created" db:"created"`
	KeyCount   int    `json:"keyCount" db:"key_count"`
	ActiveKeys int    `json:"activeKeys" db:"active_keys"`
}
