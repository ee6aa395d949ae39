package entities

type OrthancMainDicomTags struct {
	SeriesInstanceUID string `json:"SeriesInstanceUID,omitempty"`
	SOPInstanceUID    string `json:"SOPInstanceUID,omitempty"`
	InstanceNumber    string `json:"InstanceNumber,omitempty"`
}

type OrthancInstance struct {
	ID            string               `json:"ID"`
	ParentSeries  string               `json:"ParentSeries,omitempty"`
	MainDicomTags OrthancMainDicomTags `json:"MainDicomTags"`
}
