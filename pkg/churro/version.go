package churro

// Version is the release of the churro module.
const Version = "0.1.0"
