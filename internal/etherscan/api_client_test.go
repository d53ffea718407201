package etherscan_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jrh3k5/walletops/internal/etherscan"
	"github.com/jrh3k5/walletops/internal/queue"
	"github.com/jrh3k5/walletops/internal/retry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	baseURL = "http://explorer.local/api"
	wallet  = "0x9134fc7112b478e97eE6F0E6A7bf81EcAfef19ED"
)

var _ = Describe("APIClient", func() {
	var scheduler *queue.Scheduler
	var apiClient *etherscan.APIClient

	BeforeEach(func() {
		var err error
		scheduler, err = queue.NewScheduler(queue.Policy{MaxConcurrent: 2, RatePerSecond: 1000})
		Expect(err).ToNot(HaveOccurred())

		retrier, err := retry.NewExecutor(retry.Policy{
			MaxAttempts:       3,
			BaseDelay:         time.Millisecond,
			MaxDelay:          time.Millisecond,
			BackoffMultiplier: 1,
		})
		Expect(err).ToNot(HaveOccurred())

		apiClient = etherscan.NewAPIClient(client, etherscan.Config{
			BaseURL: baseURL,
			APIKey:  "secret",
			ChainID: 8453,
		}, scheduler, retrier)
	})

	AfterEach(func() {
		scheduler.Destroy()
		httpmock.Reset()
	})

	Context("GetTransactions", func() {
		It("sends the account query and converts the records", func() {
			httpmock.RegisterResponder("GET", baseURL, func(req *http.Request) (*http.Response, error) {
				query := req.URL.Query()
				Expect(query.Get("module")).To(Equal("account"))
				Expect(query.Get("action")).To(Equal("txlist"))
				Expect(query.Get("address")).To(Equal(wallet))
				Expect(query.Get("startblock")).To(Equal("0"))
				Expect(query.Get("endblock")).To(Equal("99999999"))
				Expect(query.Get("page")).To(Equal("2"))
				Expect(query.Get("offset")).To(Equal("100"))
				Expect(query.Get("sort")).To(Equal("asc"))
				Expect(query.Get("apikey")).To(Equal("secret"))
				Expect(query.Get("chainid")).To(Equal("8453"))

				return httpmock.NewStringResponse(200, `{"status":"1","message":"OK","result":[{
					"blockNumber":"123","timeStamp":"1700000000","hash":"0xaaa","nonce":"7",
					"from":"0x1","to":"0x2","value":"1000000000000000000","gas":"21000",
					"gasPrice":"1000000000","gasUsed":"21000","isError":"0","functionName":""
				}]}`), nil
			})

			txns, err := apiClient.GetTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 2, Offset: 100})
			Expect(err).ToNot(HaveOccurred())
			Expect(txns).To(HaveLen(1))

			txn := txns[0]
			Expect(txn.Hash).To(Equal("0xaaa"))
			Expect(txn.BlockNumber).To(Equal(uint64(123)))
			Expect(txn.Timestamp).To(Equal(time.Unix(1700000000, 0).UTC()))
			Expect(txn.Nonce).To(Equal(uint64(7)))
			Expect(txn.Value.String()).To(Equal("1000000000000000000"))
			Expect(txn.GasUsed).To(Equal(uint64(21000)))
			Expect(txn.IsError).To(BeFalse())
			Expect(apiClient.CallCount()).To(Equal(int64(1)))
		})

		DescribeTable("treats the explorer's empty responses as empty results",
			func(body string) {
				httpmock.RegisterResponder("GET", baseURL, httpmock.NewStringResponder(200, body))

				txns, err := apiClient.GetTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 1, Offset: 10})
				Expect(err).ToNot(HaveOccurred())
				Expect(txns).To(BeEmpty())
				Expect(apiClient.CallCount()).To(Equal(int64(1)))
			},
			Entry("no transactions sentinel", `{"status":"0","message":"No transactions found","result":[]}`),
			Entry("no records sentinel", `{"status":"0","message":"No records found","result":null}`),
			Entry("empty list with another message", `{"status":"0","message":"NOTOK","result":[]}`),
			Entry("success with empty list", `{"status":"1","message":"OK","result":[]}`),
		)

		It("accepts a single object in place of a list", func() {
			httpmock.RegisterResponder("GET", baseURL, httpmock.NewStringResponder(200, `{"status":"1","message":"OK","result":
				{"blockNumber":"1","timeStamp":"1","hash":"0xone","from":"0x1","to":"0x2","value":"5"}}`))

			txns, err := apiClient.GetTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 1, Offset: 10})
			Expect(err).ToNot(HaveOccurred())
			Expect(txns).To(HaveLen(1))
			Expect(txns[0].Hash).To(Equal("0xone"))
		})

		When("the explorer reports an application error", func() {
			It("retries and then surfaces the error", func() {
				httpmock.RegisterResponder("GET", baseURL, httpmock.NewStringResponder(200,
					`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))

				_, err := apiClient.GetTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 1, Offset: 10})

				var apiErr *etherscan.APIError
				Expect(errors.As(err, &apiErr)).To(BeTrue())
				Expect(apiErr.Message).To(Equal("NOTOK"))
				Expect(apiErr.Detail).To(Equal("Max rate limit reached"))

				var exhausted *retry.ExhaustedError
				Expect(errors.As(err, &exhausted)).To(BeTrue())
				Expect(exhausted.Attempts).To(Equal(3))
				Expect(apiClient.CallCount()).To(Equal(int64(3)))
			})
		})

		When("the first attempt gets a server error", func() {
			It("counts both round-trips and returns the retried result", func() {
				httpmock.RegisterResponder("GET", baseURL, httpmock.ResponderFromMultipleResponses([]*http.Response{
					httpmock.NewStringResponse(503, "unavailable"),
					httpmock.NewStringResponse(200, `{"status":"1","message":"OK","result":[]}`),
				}))

				_, err := apiClient.GetTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 1, Offset: 10})
				Expect(err).ToNot(HaveOccurred())
				Expect(apiClient.CallCount()).To(Equal(int64(2)))

				apiClient.ResetCallCount()
				Expect(apiClient.CallCount()).To(BeZero())
			})
		})
	})

	Context("GetInternalTransactions", func() {
		It("queries txlistinternal", func() {
			httpmock.RegisterResponder("GET", baseURL, func(req *http.Request) (*http.Response, error) {
				Expect(req.URL.Query().Get("action")).To(Equal("txlistinternal"))

				return httpmock.NewStringResponse(200, `{"status":"1","message":"OK","result":[
					{"blockNumber":"9","timeStamp":"1700000000","hash":"0xint","from":"0xc","to":"0xd","value":"10","type":"call","traceId":"0_1","isError":"1"}
				]}`), nil
			})

			txns, err := apiClient.GetInternalTransactions(context.Background(), etherscan.Query{Address: wallet, Page: 1, Offset: 10})
			Expect(err).ToNot(HaveOccurred())
			Expect(txns).To(HaveLen(1))
			Expect(txns[0].Type).To(Equal("call"))
			Expect(txns[0].TraceID).To(Equal("0_1"))
			Expect(txns[0].IsError).To(BeTrue())
		})
	})

	Context("GetTokenTransfers", func() {
		DescribeTable("maps each standard to its action and value fields",
			func(standard etherscan.TokenStandard, action string, record string, expectedValue string, expectedTokenID string) {
				httpmock.RegisterResponder("GET", baseURL, func(req *http.Request) (*http.Response, error) {
					Expect(req.URL.Query().Get("action")).To(Equal(action))

					return httpmock.NewStringResponse(200, `{"status":"1","message":"OK","result":[`+record+`]}`), nil
				})

				transfers, err := apiClient.GetTokenTransfers(context.Background(), standard, etherscan.Query{Address: wallet, Page: 1, Offset: 10})
				Expect(err).ToNot(HaveOccurred())
				Expect(transfers).To(HaveLen(1))

				transfer := transfers[0]
				Expect(transfer.ContractAddress).To(Equal("0xtoken"))
				Expect(transfer.TokenID).To(Equal(expectedTokenID))
				if expectedValue == "" {
					Expect(transfer.Value).To(BeNil())
				} else {
					Expect(transfer.Value.String()).To(Equal(expectedValue))
				}
			},
			Entry("ERC-20", etherscan.ERC20, "tokentx",
				`{"blockNumber":"1","timeStamp":"1","hash":"0xh","from":"0x1","to":"0x2","contractAddress":"0xtoken","value":"2500000","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6"}`,
				"2500000", ""),
			Entry("ERC-721", etherscan.ERC721, "tokennfttx",
				`{"blockNumber":"1","timeStamp":"1","hash":"0xh","from":"0x1","to":"0x2","contractAddress":"0xtoken","tokenID":"77","tokenName":"Art","tokenSymbol":"ART","tokenDecimal":"0"}`,
				"", "77"),
			Entry("ERC-1155", etherscan.ERC1155, "token1155tx",
				`{"blockNumber":"1","timeStamp":"1","hash":"0xh","from":"0x1","to":"0x2","contractAddress":"0xtoken","tokenID":"3","tokenValue":"12","tokenName":"Items","tokenSymbol":"ITM"}`,
				"12", "3"),
		)

		It("reports malformed records", func() {
			httpmock.RegisterResponder("GET", baseURL, httpmock.NewStringResponder(200,
				`{"status":"1","message":"OK","result":[{"blockNumber":"x","timeStamp":"1","hash":"0xbad"}]}`))

			_, err := apiClient.GetTokenTransfers(context.Background(), etherscan.ERC20, etherscan.Query{Address: wallet, Page: 1, Offset: 10})
			Expect(err).To(MatchError(ContainSubstring("invalid block number")))
		})
	})

	Context("GetTokenDetails", func() {
		It("reads the tokeninfo endpoint", func() {
			httpmock.RegisterResponder("GET", baseURL, func(req *http.Request) (*http.Response, error) {
				query := req.URL.Query()
				Expect(query.Get("module")).To(Equal("token"))
				Expect(query.Get("action")).To(Equal("tokeninfo"))
				Expect(query.Get("contractaddress")).To(Equal("0xtoken"))

				return httpmock.NewStringResponse(200, `{"status":"1","message":"OK","result":[
					{"contractAddress":"0xtoken","tokenName":"USD Coin","symbol":"USDC","divisor":"6"}
				]}`), nil
			})

			details, err := apiClient.GetTokenDetails(context.Background(), "0xtoken")
			Expect(err).ToNot(HaveOccurred())
			Expect(details.Name).To(Equal("USD Coin"))
			Expect(details.Symbol).To(Equal("USDC"))
			Expect(details.Decimals).To(Equal(6))
		})

		It("returns nil for unknown contracts", func() {
			httpmock.RegisterResponder("GET", baseURL, httpmock.NewStringResponder(200,
				`{"status":"0","message":"No data found","result":[]}`))

			details, err := apiClient.GetTokenDetails(context.Background(), "0xtoken")
			Expect(err).ToNot(HaveOccurred())
			Expect(details).To(BeNil())
		})
	})
})
