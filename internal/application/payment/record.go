package payment

import (
	"context"
	"errors"
	"time"

	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const useCaseRecord = "payment.record_response"

// BasketLookup is the read used to link a response to its basket.
type BasketLookup interface {
	Get(ctx context.Context, id int64) (*dombasket.Basket, error)
}

type RecordInput struct {
	Processor      string
	Payload        dompay.Payload
	TransactionID  string
	OrderReference string
}

type RecordResult struct {
	ID       int64
	BasketID *int64
}

// RecordResponseUseCase stores every raw notification before anything else
// looks at it.
type RecordResponseUseCase struct {
	responses  dompay.ResponseRepository
	baskets    BasketLookup
	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewRecordResponseUseCase(responses dompay.ResponseRepository, baskets BasketLookup, tel observability.Observability) *RecordResponseUseCase {
	tel = observability.Or(tel)
	return &RecordResponseUseCase{
		responses:  responses,
		baskets:    baskets,
		log:        tel.Logger().With(observability.F("service", paymentService)),
		reqCounter: tel.Metrics().Counter(observability.MUsecaseRequests),
		durHist:    tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (uc *RecordResponseUseCase) Execute(ctx context.Context, cmd RecordInput) (_ *RecordResult, err error) {
	start := time.Now()
	outcome := "success"
	var res RecordResult
	defer func() {
		uc.reqCounter.Add(1, observability.L("use_case", useCaseRecord), observability.L("outcome", outcome))
		uc.durHist.Observe(time.Since(start).Seconds(), observability.L("use_case", useCaseRecord))
	}()

	// The link is best effort: an unknown or malformed reference is stored as nil.
	if cmd.OrderReference != "" && uc.baskets != nil {
		if id, parseErr := domorder.BasketIDFromNumber(cmd.OrderReference); parseErr == nil {
			_, getErr := uc.baskets.Get(ctx, id)
			switch {
			case getErr == nil:
				res.BasketID = &id
			case !errors.Is(getErr, dombasket.ErrNotFound):
				logctx.FromOr(ctx, uc.log).Warn("response_basket_link_failed",
					observability.F("basket_id", id),
					observability.F("error", getErr.Error()),
				)
			}
		}
	}

	id, err := uc.responses.Append(ctx, &dompay.ProcessorResponse{
		Processor:     cmd.Processor,
		Payload:       cmd.Payload.Clone(),
		TransactionID: cmd.TransactionID,
		BasketID:      res.BasketID,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		outcome = "error"
		return nil, err
	}
	res.ID = id
	return &res, nil
}
