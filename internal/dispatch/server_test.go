package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/crypto/bcrypt"
)

var apiRoute = regexp.MustCompile(`^/api/dispatches`)

type testResponse struct {
	Msg            string           `json:"msg"`
	Detail         []map[string]any `json:"detail"`
	Total          *int             `json:"total"`
	Header         map[string]any   `json:"header"`
	ElapsedMinutes *int             `json:"elapsedMinutes"`
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		clock       *mockTimeSource
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler("GET", "/healthz", server.ServeHTTP)
		for _, method := range []string{"GET", "POST", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, apiRoute, server.ServeHTTP)
		}
	}

	do := func(method, path string, body any) (*http.Response, testResponse) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		req.SetBasicAuth("station", "secret")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var out testResponse
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		if len(data) > 0 && data[0] == '{' {
			Expect(json.Unmarshal(data, &out)).To(Succeed())
		}
		return resp, out
	}

	orderBody := map[string]any{"orderId": "L125090586", "subOrderId": "ODC-1"}
	detailQuery := "?orderId=L125090586&subOrderId=ODC-1"

	BeforeEach(func() {
		db = newMockDB()
		clock = &mockTimeSource{now: time.Date(2025, 9, 23, 8, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, newMockArchive(), clock)
		Expect(service.ImportOrder(newTestOrder())).To(Succeed())

		hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		auth = BasicAuth{Username: "station", PasswordHash: string(hash)}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("authentication", func() {
		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/dispatches/detail" + detailQuery)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject a wrong password", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/dispatches/detail"+detailQuery, nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("station", "guess")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		When("no credentials are configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{}
				setupServer()
			})

			It("should allow every request", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/dispatches/detail" + detailQuery)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/dispatches/detail/scan", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("GET /api/dispatches/detail", func() {
		It("should return the lines with their historical keys", func() {
			resp, out := do("GET", "/api/dispatches/detail"+detailQuery, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(*out.Total).To(Equal(2))
			Expect(out.Detail[0]).To(HaveKeyWithValue("Cod_Producto_Pedido", "3021301212"))
			Expect(out.Detail[0]).To(HaveKey("Cantidd_abastecida"))
			Expect(out.Detail[1]["Cantidd_abastecida"]).To(BeNil())
		})

		It("should require the order key", func() {
			resp, _ := do("GET", "/api/dispatches/detail?orderId=L125090586", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should report unknown orders", func() {
			resp, out := do("GET", "/api/dispatches/detail?orderId=X&subOrderId=Y", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(out.Msg).To(Equal(ErrOrderNotFound.Error()))
		})
	})

	Describe("POST /api/dispatches/detail/start", func() {
		It("should answer 409 without a preparer", func() {
			resp, out := do("POST", "/api/dispatches/detail/start", orderBody)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(out.Msg).To(Equal(ErrPreparerMissing.Error()))
		})

		It("should start once a preparer is assigned", func() {
			resp, _ := do("POST", "/api/dispatches/detail/assign", map[string]any{
				"orderId": "L125090586", "subOrderId": "ODC-1", "preparerCode": "P01", "preparerName": "J. Perez",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, out := do("POST", "/api/dispatches/detail/start", orderBody)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(out.Header).To(HaveKey("inicio_dt"))
			Expect(out.Header["preparado_cod"]).To(Equal("P01"))

			resp, _ = do("POST", "/api/dispatches/detail/start", orderBody)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/dispatches/detail/scan", func() {
		scan := func(qty any, label string) (*http.Response, testResponse) {
			return do("POST", "/api/dispatches/detail/scan", map[string]any{
				"orderId": "L125090586", "subOrderId": "ODC-1",
				"productCode": "3021301212", "quantity": qty, "labelId": label,
			})
		}

		It("should refuse scans before the start", func() {
			resp, _ := scan(1, "0002")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("preparation has started", func() {
			BeforeEach(func() {
				_, err := service.AssignPreparer(Key{OrderID: "L125090586", SubOrderID: "ODC-1"}, "P01", "")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Start(Key{OrderID: "L125090586", SubOrderID: "ODC-1"})
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the updated detail", func() {
				resp, out := scan(1.5, "0002")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(out.Msg).To(Equal("OK"))
				Expect(out.Detail[0]["Cantidad_Scaneada"]).To(Equal("1.5"))
			})

			It("should answer 400 on overpick", func() {
				resp, out := scan(5, "0002")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(out.Msg).To(Equal(ErrOverpick.Error()))
			})

			It("should answer 409 on a repeated label", func() {
				resp, _ := scan(1, "0002")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp, _ = scan(1, "0002")
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})

			It("should answer 404 for unknown products", func() {
				resp, _ := do("POST", "/api/dispatches/detail/scan", map[string]any{
					"orderId": "L125090586", "subOrderId": "ODC-1", "productCode": "999", "quantity": 1, "labelId": "1",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})

			It("should reject malformed bodies", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/dispatches/detail/scan", bytes.NewBufferString("{"))
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("station", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})

			It("should reset a product", func() {
				scan(2, "0002")
				resp, out := do("POST", "/api/dispatches/detail/reset", map[string]any{
					"orderId": "L125090586", "subOrderId": "ODC-1", "productCode": "3021301212",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(out.Detail[0]["Cantidad_Scaneada"]).To(Equal("0"))
			})

			It("should finish and report the elapsed minutes", func() {
				clock.now = clock.now.Add(30 * time.Minute)
				resp, out := do("POST", "/api/dispatches/detail/finish", orderBody)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(*out.ElapsedMinutes).To(Equal(30))

				resp, out = do("GET", "/api/dispatches/detail/header"+detailQuery, nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(out.Header).To(HaveKey("fin_dt"))
				Expect(out.Header["tprep_min"]).To(BeNumerically("==", 30))
			})
		})
	})

	Describe("POST /api/dispatches/detail/close", func() {
		It("should remove the order", func() {
			resp, _ := do("POST", "/api/dispatches/detail/close", orderBody)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp, _ = do("GET", "/api/dispatches/detail"+detailQuery, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("orders", func() {
		It("should import and list orders", func() {
			order := newTestOrder()
			order.Key.SubOrderID = "ODC-2"
			resp, _ := do("POST", "/api/dispatches", order)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/dispatches", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("station", "secret")
			listResp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer listResp.Body.Close()
			var orders []*Order
			Expect(json.NewDecoder(listResp.Body).Decode(&orders)).To(Succeed())
			Expect(orders).To(HaveLen(2))
		})
	})

	Describe("internal errors", func() {
		It("should hide the cause", func() {
			db.getErr = errors.New("bolt: database not open")
			resp, out := do("GET", "/api/dispatches/detail"+detailQuery, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(out.Msg).To(Equal("Internal server error"))
		})
	})

	Describe("statusFor", func() {
		It("should map every service error", func() {
			Expect(statusFor(ErrInvalidRequest)).To(Equal(http.StatusBadRequest))
			Expect(statusFor(ErrOrderNotFound)).To(Equal(http.StatusNotFound))
			Expect(statusFor(ErrItemNotFound)).To(Equal(http.StatusNotFound))
			Expect(statusFor(ErrPreparerMissing)).To(Equal(http.StatusConflict))
			Expect(statusFor(ErrDuplicateLabel)).To(Equal(http.StatusConflict))
			Expect(statusFor(ErrOverpick)).To(Equal(http.StatusBadRequest))
			Expect(statusFor(ErrNotStarted)).To(Equal(http.StatusBadRequest))
			Expect(statusFor(ErrAlreadyStarted)).To(Equal(http.StatusBadRequest))
			Expect(statusFor(ErrAlreadyFinished)).To(Equal(http.StatusBadRequest))
			Expect(statusFor(errors.New("boom"))).To(Equal(http.StatusInternalServerError))
		})
	})
})
