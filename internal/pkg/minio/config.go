package minio

import "errors"

// Config holds the connection settings for an S3-compatible endpoint.
type Config struct {
	// Endpoint is the object storage host, e.g. "localhost:9000" or
	// "s3.amazonaws.com".
	Endpoint string

	// AccessKeyID and SecretAccessKey authenticate the client.
	AccessKeyID     string
	SecretAccessKey string

	// SessionToken is set for temporary credentials only.
	SessionToken string

	// Region of the object storage, e.g. "us-east-1". Optional.
	Region string

	// UseSSL selects HTTPS.
	UseSSL bool
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("minio: access key ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("minio: secret access key is required")
	}
	return nil
}
