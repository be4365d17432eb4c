package warehouse

import "strings"

// Credentials is how the warehouse itself authenticates against S3 when it
// runs UNLOAD and COPY.
type Credentials struct {
	IAMRole         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// String renders the credentials in the warehouse's key=value;... form.
func (c Credentials) String() string {
	if c.IAMRole != "" {
		return "aws_iam_role=" + c.IAMRole
	}
	parts := []string{
		"aws_access_key_id=" + c.AccessKeyID,
		"aws_secret_access_key=" + c.SecretAccessKey,
	}
	if c.SessionToken != "" {
		parts = append(parts, "token="+c.SessionToken)
	}
	return strings.Join(parts, ";")
}

// withKey appends the client-side encryption key to the credential string.
func (c Credentials) withKey(key string) string {
	return c.String() + ";master_symmetric_key=" + key
}
