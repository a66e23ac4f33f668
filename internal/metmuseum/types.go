package metmuseum

// Object is the subset of a Met collection object that sayuctl reads.
type Object struct {
	ObjectID          int      `json:"objectID"`
	IsHighlight       bool     `json:"isHighlight"`
	AccessionNumber   string   `json:"accessionNumber"`
	IsPublicDomain    bool     `json:"isPublicDomain"`
	PrimaryImage      string   `json:"primaryImage"`
	PrimaryImageSmall string   `json:"primaryImageSmall"`
	AdditionalImages  []string `json:"additionalImages"`
	Department        string   `json:"department"`
	ObjectName        string   `json:"objectName"`
	Title             string   `json:"title"`
	Culture           string   `json:"culture"`
	Period            string   `json:"period"`
	ArtistDisplayName string   `json:"artistDisplayName"`
	ArtistNationality string   `json:"artistNationality"`
	ArtistBeginDate   string   `json:"artistBeginDate"`
	ArtistEndDate     string   `json:"artistEndDate"`
	ObjectDate        string   `json:"objectDate"`
	ObjectBeginDate   int      `json:"objectBeginDate"`
	ObjectEndDate     int      `json:"objectEndDate"`
	Medium            string   `json:"medium"`
	Dimensions        string   `json:"dimensions"`
	Classification    string   `json:"classification"`
	CreditLine        string   `json:"creditLine"`
	ObjectURL         string   `json:"objectURL"`
	Tags              []Tag    `json:"tags"`
}

type Tag struct {
	Term string `json:"term"`
}

type Department struct {
	DepartmentID int    `json:"departmentId"`
	DisplayName  string `json:"displayName"`
}

// SearchQuery maps onto the /search endpoint parameters.
type SearchQuery struct {
	Q               string
	HasImages       bool
	IsPublicDomain  bool
	DepartmentID    int
	ArtistOrCulture bool
}

type objectIDsResponse struct {
	Total     int   `json:"total"`
	ObjectIDs []int `json:"objectIDs"`
}

type departmentsResponse struct {
	Departments []Department `json:"departments"`
}
