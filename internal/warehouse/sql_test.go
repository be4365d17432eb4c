package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_String(t *testing.T) {
	assert.Equal(t, "aws_iam_role=arn:role", Credentials{IAMRole: "arn:role", AccessKeyID: "ignored"}.String())
	assert.Equal(t, "aws_access_key_id=AK;aws_secret_access_key=SK",
		Credentials{AccessKeyID: "AK", SecretAccessKey: "SK"}.String())
	assert.Equal(t, "aws_access_key_id=AK;aws_secret_access_key=SK;token=T",
		Credentials{AccessKeyID: "AK", SecretAccessKey: "SK", SessionToken: "T"}.String())
}

func TestUnloadSQL(t *testing.T) {
	got := unloadSQL("public", "o'rders", UnloadSpec{
		DataPrefix:  "s3://bucket/run/public.orders/",
		Credentials: Credentials{IAMRole: "arn:role"},
		Key:         "a2V5",
	})
	assert.Equal(t,
		`UNLOAD ('SELECT * FROM "public"."o''rders"') TO 's3://bucket/run/public.orders/' `+
			`CREDENTIALS 'aws_iam_role=arn:role;master_symmetric_key=a2V5' `+
			`MANIFEST ENCRYPTED GZIP ALLOWOVERWRITE DELIMITER AS '^' ADDQUOTES ESCAPE`,
		got)
}

func TestCopySQL(t *testing.T) {
	spec := CopySpec{
		ManifestPath: "s3://bucket/run/public.orders/manifest",
		Credentials:  Credentials{IAMRole: "arn:role"},
		Key:          "a2V5",
	}

	t.Run("without explicit ids", func(t *testing.T) {
		assert.Equal(t,
			`COPY "sales"."orders" FROM 's3://bucket/run/public.orders/manifest' `+
				`CREDENTIALS 'aws_iam_role=arn:role;master_symmetric_key=a2V5' `+
				`MANIFEST ENCRYPTED GZIP DELIMITER AS '^' REMOVEQUOTES ESCAPE COMPUPDATE OFF STATUPDATE ON`,
			copySQL("sales", "orders", spec))
	})

	t.Run("with explicit ids", func(t *testing.T) {
		spec.ExplicitIDs = true
		assert.Contains(t, copySQL("sales", "orders", spec), "ESCAPE EXPLICIT_IDS COMPUPDATE OFF")
	})
}

func TestRetargetDDL(t *testing.T) {
	testCases := []struct {
		name string
		ddl  string
		want string
		ok   bool
	}{
		{
			name: "plain qualified name",
			ddl:  "CREATE TABLE public.orders (\n id integer\n) DISTSTYLE AUTO;",
			want: "CREATE TABLE IF NOT EXISTS \"sales\".\"orders_copy\" (\n id integer\n) DISTSTYLE AUTO;",
			ok:   true,
		},
		{
			name: "quoted name with spaces",
			ddl:  `CREATE TABLE "my schema"."order ""items""" (id int);`,
			want: `CREATE TABLE IF NOT EXISTS "sales"."orders_copy" (id int);`,
			ok:   true,
		},
		{
			name: "already idempotent and lowercase",
			ddl:  `create table if not exists orders(id int)`,
			want: `CREATE TABLE IF NOT EXISTS "sales"."orders_copy"(id int)`,
			ok:   true,
		},
		{
			name: "not a create statement",
			ddl:  "SELECT 1",
			ok:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := retargetDDL(tc.ddl, "sales", "orders_copy")
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
