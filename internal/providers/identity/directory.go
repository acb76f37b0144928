package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/providers"
)

var ErrUserNotFound = errors.New("identity_user_not_found")

// DirectoryUser is a user record held by the identity provider.
type DirectoryUser struct {
	Subject  string
	Username string
	Email    string
	Name     string
	Enabled  bool
	Status   string
}

// Directory looks up and invites users in the identity provider.
type Directory interface {
	GetUser(ctx context.Context, username string) (*DirectoryUser, error)
	InviteUser(ctx context.Context, email, name string) (*DirectoryUser, error)
}

// CognitoAPI is the subset of the Cognito admin client used here.
type CognitoAPI interface {
	AdminGetUser(ctx context.Context, in *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
}

type CognitoDirectory struct {
	api        CognitoAPI
	userPoolID string
}

func NewCognitoDirectory(awsCfg aws.Config, cfg config.Config) Directory {
	return NewDirectory(cip.NewFromConfig(awsCfg), cfg.AWS.CognitoUserPoolID)
}

func NewDirectory(api CognitoAPI, userPoolID string) *CognitoDirectory {
	return &CognitoDirectory{api: api, userPoolID: userPoolID}
}

func (d *CognitoDirectory) GetUser(ctx context.Context, username string) (*DirectoryUser, error) {
	out, err := d.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(d.userPoolID),
		Username:   aws.String(strings.TrimSpace(username)),
	})
	if err != nil {
		var notFound *ciptypes.UserNotFoundException
		if errors.As(err, &notFound) {
			return nil, ErrUserNotFound
		}
		return nil, providers.External("cognito", "admin_get_user", err)
	}

	user := fromAttributes(out.UserAttributes)
	user.Username = aws.ToString(out.Username)
	user.Enabled = out.Enabled
	user.Status = string(out.UserStatus)
	return user, nil
}

// InviteUser creates the user with a verified email; Cognito sends the
// temporary password itself.
func (d *CognitoDirectory) InviteUser(ctx context.Context, email, name string) (*DirectoryUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	attrs := []ciptypes.AttributeType{
		{Name: aws.String("email"), Value: aws.String(email)},
		{Name: aws.String("email_verified"), Value: aws.String("true")},
	}
	if name = strings.TrimSpace(name); name != "" {
		attrs = append(attrs, ciptypes.AttributeType{Name: aws.String("name"), Value: aws.String(name)})
	}

	out, err := d.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(d.userPoolID),
		Username:               aws.String(email),
		UserAttributes:         attrs,
		DesiredDeliveryMediums: []ciptypes.DeliveryMediumType{ciptypes.DeliveryMediumTypeEmail},
	})
	if err != nil {
		return nil, providers.External("cognito", "admin_create_user", err)
	}
	if out.User == nil {
		return nil, providers.External("cognito", "admin_create_user", errors.New("empty user in response"))
	}

	user := fromAttributes(out.User.Attributes)
	user.Username = aws.ToString(out.User.Username)
	user.Enabled = out.User.Enabled
	user.Status = string(out.User.UserStatus)
	return user, nil
}

func fromAttributes(attrs []ciptypes.AttributeType) *DirectoryUser {
	user := &DirectoryUser{}
	for _, attr := range attrs {
		switch aws.ToString(attr.Name) {
		case "sub":
			user.Subject = aws.ToString(attr.Value)
		case "email":
			user.Email = aws.ToString(attr.Value)
		case "name":
			user.Name = aws.ToString(attr.Value)
		}
	}
	return user
}
