package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out   *ssm.GetParameterOutput
	err   error
	calls []*ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, in)
	return f.out, f.err
}

func paramOutput(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(value)}}
}

func Test_New_RequiresAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func Test_GetParameter_ReturnsValueWithDecryption(t *testing.T) {
	req := require.New(t)
	api := &fakeSSM{out: paramOutput("secret-value")}
	client, err := New(api)
	req.NoError(err)

	got, err := client.GetParameter(context.Background(), "/messenger/max_page_size")
	req.NoError(err)
	req.Equal("secret-value", got)

	req.Len(api.calls, 1)
	req.Equal("/messenger/max_page_size", *api.calls[0].Name)
	req.True(*api.calls[0].WithDecryption)
}

func Test_GetParameter_RequiresName(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{})
	req.NoError(err)

	_, err = client.GetParameter(context.Background(), "   ")
	req.Error(err)
}

func Test_GetParameter_MissingValue(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{out: &ssm.GetParameterOutput{}})
	req.NoError(err)

	_, err = client.GetParameter(context.Background(), "/messenger/max_page_size")
	req.Error(err)
}

func Test_GetIntParameter_ParsesValue(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{out: paramOutput(" 250 ")})
	req.NoError(err)

	got, err := client.GetIntParameter(context.Background(), "/messenger/max_page_size", 100)
	req.NoError(err)
	req.Equal(250, got)
}

func Test_GetIntParameter_FallsBackWhenAbsent(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{err: &types.ParameterNotFound{}})
	req.NoError(err)

	got, err := client.GetIntParameter(context.Background(), "/messenger/max_page_size", 100)
	req.NoError(err)
	req.Equal(100, got)
}

func Test_GetIntParameter_MalformedValueIsError(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{out: paramOutput("plenty")})
	req.NoError(err)

	_, err = client.GetIntParameter(context.Background(), "/messenger/max_page_size", 100)
	req.Error(err)
}

func Test_GetIntParameter_OtherErrorsPropagate(t *testing.T) {
	req := require.New(t)
	client, err := New(&fakeSSM{err: errors.New("access denied")})
	req.NoError(err)

	_, err = client.GetIntParameter(context.Background(), "/messenger/max_page_size", 100)
	req.Error(err)
}
