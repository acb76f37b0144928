package identity

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCognito struct {
	created *cip.AdminCreateUserInput
}

func (f *fakeCognito) AdminGetUser(_ context.Context, in *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	if aws.ToString(in.Username) != "ana@acme.test" {
		return nil, &ciptypes.UserNotFoundException{Message: aws.String("nope")}
	}
	return &cip.AdminGetUserOutput{
		Username: in.Username,
		Enabled:  true,
		UserAttributes: []ciptypes.AttributeType{
			{Name: aws.String("sub"), Value: aws.String("sub-1")},
			{Name: aws.String("email"), Value: aws.String("ana@acme.test")},
		},
		UserStatus: ciptypes.UserStatusTypeConfirmed,
	}, nil
}

func (f *fakeCognito) AdminCreateUser(_ context.Context, in *cip.AdminCreateUserInput, _ ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error) {
	f.created = in
	return &cip.AdminCreateUserOutput{User: &ciptypes.UserType{
		Username:   in.Username,
		Enabled:    true,
		Attributes: append([]ciptypes.AttributeType{{Name: aws.String("sub"), Value: aws.String("sub-2")}}, in.UserAttributes...),
		UserStatus: ciptypes.UserStatusTypeForceChangePassword,
	}}, nil
}

func TestGetUser(t *testing.T) {
	dir := NewDirectory(&fakeCognito{}, "pool")

	user, err := dir.GetUser(context.Background(), "ana@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", user.Subject)
	assert.Equal(t, "CONFIRMED", user.Status)

	_, err = dir.GetUser(context.Background(), "bob@acme.test")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestInviteUser(t *testing.T) {
	api := &fakeCognito{}
	dir := NewDirectory(api, "pool")

	user, err := dir.InviteUser(context.Background(), " Bob@Acme.test ", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "sub-2", user.Subject)
	assert.Equal(t, "bob@acme.test", user.Email)
	assert.Equal(t, "bob@acme.test", aws.ToString(api.created.Username))
	assert.Equal(t, "pool", aws.ToString(api.created.UserPoolId))
}
