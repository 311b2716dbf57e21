package translate

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
	"github.com/aws/smithy-go"
)

// AWSTranslate is S4's primary ("formal grammar-based") provider, grounded
// on the reference translate adapter's single-text TranslateText call:
// Amazon Translate has no batch-of-lines endpoint, so each line in a batch
// is translated individually and the results are reassembled in order —
// satisfying the Provider contract's "same length as input" guarantee
// without needing the generative path's numbered-enumeration parse.
type AWSTranslate struct {
	client *translate.Client
}

// NewAWSTranslate builds the primary provider from a bootstrapped AWS
// config (internal/config.LoadAWS).
func NewAWSTranslate(cfg aws.Config) *AWSTranslate {
	return &AWSTranslate{client: translate.NewFromConfig(cfg)}
}

// Name implements Provider.
func (a *AWSTranslate) Name() string { return "aws-translate" }

// TranslateBatch implements Provider. The genre parameter is unused here:
// Amazon Translate has no prompt-style context parameterization, unlike
// the generative fallback.
func (a *AWSTranslate) TranslateBatch(ctx context.Context, lines []string, sourceLanguage, targetLanguage, genre string) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result, err := a.client.TranslateText(ctx, &translate.TranslateTextInput{
			Text:               aws.String(line),
			SourceLanguageCode: aws.String(baseCode(sourceLanguage)),
			TargetLanguageCode: aws.String(baseCode(targetLanguage)),
		})
		if err != nil {
			return nil, classifyAWSError(err)
		}
		out[i] = aws.ToString(result.TranslatedText)
	}
	return out, nil
}

// baseCode strips a regional suffix ("es-MX" -> "es"): Amazon Translate's
// language codes are base-language only. An empty source language maps to
// "auto" so the service detects it.
func baseCode(code string) string {
	if code == "" {
		return "auto"
	}
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// classifyAWSError maps a smithy API error to the taxonomy:
// ThrottlingException/TooManyRequestsException is a rate limit, other 5xx
// fault errors are server errors, and client-fault errors are permanent.
func classifyAWSError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return WrapServerError(err)
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return WrapRateLimited(err)
	}
	var faultErr interface{ ErrorFault() smithy.ErrorFault }
	if errors.As(err, &faultErr) && faultErr.ErrorFault() == smithy.FaultClient {
		return WrapPermanent(err)
	}
	return WrapServerError(err)
}
